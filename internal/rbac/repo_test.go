package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobready/authcore/internal/shared"
)

func TestPGRepositoryMalformedAccountIDMatchesNothing(t *testing.T) {
	repo := NewPGRepository(nil)
	ctx := context.Background()

	_, err := repo.Subject(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	grants, err := repo.ActiveGrants(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Empty(t, grants)

	assignments, err := repo.ListByAccount(ctx, "42", false)
	require.NoError(t, err)
	assert.Empty(t, assignments)

	tx := &txRepo{}
	assert.True(t, errors.Is(tx.LockAccount(ctx, "nope"), shared.ErrNotFound))
	_, found, err := tx.FindPair(ctx, "nope", 1)
	require.NoError(t, err)
	assert.False(t, found)
}
