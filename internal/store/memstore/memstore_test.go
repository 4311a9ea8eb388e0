package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
)

func seed(t *testing.T) (*Store, users.Account, roles.Role) {
	t.Helper()
	s := New()
	ctx := context.Background()
	account, err := s.Accounts().Create(ctx, users.Account{Email: "a@example.com", IsActive: true})
	require.NoError(t, err)
	role, err := s.Roles().Create(ctx, roles.Role{Name: "editor", Permissions: rbac.NewPermissionSet("roles.view"), IsActive: true})
	require.NoError(t, err)
	return s, account, role
}

func grant(t *testing.T, s *Store, accountID string, roleID int64) rbac.Assignment {
	t.Helper()
	var out rbac.Assignment
	err := s.Assignments().WithTx(context.Background(), func(ctx context.Context, tx rbac.TxRepository) error {
		var err error
		out, err = tx.Insert(ctx, rbac.Assignment{AccountID: accountID, RoleID: roleID, GrantedAt: time.Now().UTC()})
		return err
	})
	require.NoError(t, err)
	return out
}

func TestUniqueKeys(t *testing.T) {
	s, account, role := seed(t)
	ctx := context.Background()

	_, err := s.Accounts().Create(ctx, users.Account{Email: account.Email})
	assert.True(t, errors.Is(err, shared.ErrConflict))
	_, err = s.Roles().Create(ctx, roles.Role{Name: role.Name})
	assert.True(t, errors.Is(err, shared.ErrConflict))

	other, err := s.Accounts().Create(ctx, users.Account{Email: "b@example.com"})
	require.NoError(t, err)
	other.Email = account.Email
	_, err = s.Accounts().Update(ctx, other)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	other.Email = "c@example.com"
	_, err = s.Accounts().Update(ctx, other)
	require.NoError(t, err)
	_, err = s.Accounts().GetByEmail(ctx, "b@example.com")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	found, err := s.Accounts().GetByEmail(ctx, "c@example.com")
	require.NoError(t, err)
	assert.Equal(t, other.ID, found.ID)
}

func TestRolePermissionsAreCopied(t *testing.T) {
	s, _, role := seed(t)
	role.Permissions["users.edit"] = struct{}{}

	stored, err := s.Roles().GetByID(context.Background(), role.ID)
	require.NoError(t, err)
	assert.False(t, stored.Permissions.Has("users.edit"))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s, account, role := seed(t)
	boom := errors.New("boom")

	err := s.Assignments().WithTx(context.Background(), func(ctx context.Context, tx rbac.TxRepository) error {
		if _, err := tx.Insert(ctx, rbac.Assignment{AccountID: account.ID, RoleID: role.ID}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := s.Assignments().ListByAccount(context.Background(), account.ID, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	a := grant(t, s, account.ID, role.ID)
	assert.Equal(t, int64(1), a.ID, "ids consumed by a rolled back transaction are reused")
	assert.Equal(t, "editor", a.RoleName)
}

func TestInsertRejectsDuplicatePair(t *testing.T) {
	s, account, role := seed(t)
	first := grant(t, s, account.ID, role.ID)

	err := s.Assignments().WithTx(context.Background(), func(ctx context.Context, tx rbac.TxRepository) error {
		require.NoError(t, tx.Deactivate(ctx, first.ID))
		_, err := tx.Insert(ctx, rbac.Assignment{AccountID: account.ID, RoleID: role.ID})
		return err
	})
	assert.True(t, errors.Is(err, shared.ErrConflict))

	stored, err := s.Assignments().Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive, "deactivate rolled back with the failed insert")
}

func TestAccountDeleteCascades(t *testing.T) {
	s, account, role := seed(t)
	other, err := s.Accounts().Create(context.Background(), users.Account{Email: "b@example.com", IsActive: true})
	require.NoError(t, err)
	grant(t, s, account.ID, role.ID)
	kept := grant(t, s, other.ID, role.ID)

	require.NoError(t, s.Accounts().Delete(context.Background(), account.ID))

	byRole, err := s.Assignments().ListByRole(context.Background(), role.ID, false)
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	assert.Equal(t, kept.ID, byRole[0].ID)
	_, err = s.Assignments().Subject(context.Background(), account.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestRoleDeleteInUse(t *testing.T) {
	s, account, role := seed(t)
	a := grant(t, s, account.ID, role.ID)

	err := s.Roles().Delete(context.Background(), role.ID)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, shared.MsgRoleInUse, shared.MessageOf(err))

	require.NoError(t, s.Assignments().WithTx(context.Background(), func(ctx context.Context, tx rbac.TxRepository) error {
		return tx.Deactivate(ctx, a.ID)
	}))
	require.NoError(t, s.Roles().Delete(context.Background(), role.ID))

	_, err = s.Assignments().Get(context.Background(), a.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	_, err = s.Roles().GetByName(context.Background(), "editor")
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestActiveGrantsSkipInactiveRoles(t *testing.T) {
	s, account, role := seed(t)
	ctx := context.Background()
	viewer, err := s.Roles().Create(ctx, roles.Role{Name: "viewer", Permissions: rbac.NewPermissionSet("users.view"), IsActive: true})
	require.NoError(t, err)
	grant(t, s, account.ID, role.ID)
	grant(t, s, account.ID, viewer.ID)

	_, err = s.Roles().Update(ctx, viewer.ID, func(r *roles.Role) error {
		r.IsActive = false
		return nil
	})
	require.NoError(t, err)

	grants, err := s.Assignments().ActiveGrants(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "editor", grants[0].RoleName)

	stats, err := s.Assignments().Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalRoles)
	assert.Equal(t, 1, stats.ActiveRoles)
	assert.Equal(t, 2, stats.ActiveAssignments)
	assert.Len(t, stats.MostUsedRoles, 1)
}

func TestWindow(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, window(items, shared.NewPage(2, 2)))
	assert.Equal(t, []int{5}, window(items, shared.NewPage(3, 2)))
	assert.Empty(t, window(items, shared.NewPage(4, 2)))
}
