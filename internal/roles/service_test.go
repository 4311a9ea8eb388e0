package roles_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/store/memstore"
	"github.com/jobready/authcore/internal/users"
)

type recordingInvalidator struct {
	roleIDs []int64
}

func (r *recordingInvalidator) InvalidateRole(ctx context.Context, roleID int64) error {
	r.roleIDs = append(r.roleIDs, roleID)
	return nil
}

func newService(t *testing.T) (*roles.Service, *memstore.Store, *recordingInvalidator, *shared.MemoryAuditLog) {
	t.Helper()
	store := memstore.New()
	inv := &recordingInvalidator{}
	audit := shared.NewMemoryAuditLog()
	return roles.NewService(store.Roles(), roles.ServiceConfig{Invalidator: inv, Audit: audit}), store, inv, audit
}

func TestCreateRoleNameIsUniqueIgnoringCase(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, roles.CreateInput{Name: "Editor", Permissions: []string{"Read", "write", "read", " write "}})
	require.NoError(t, err)
	assert.Equal(t, "editor", created.Name)
	assert.True(t, created.IsActive)
	assert.Equal(t, []string{"Read", "read", "write"}, created.Permissions.Slice())

	_, err = svc.Create(ctx, roles.CreateInput{Name: "EDITOR"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, shared.MsgRoleNameTaken, shared.MessageOf(err))

	_, err = svc.Create(ctx, roles.CreateInput{Name: "reviewer"})
	require.NoError(t, err)

	byName, err := svc.GetByName(ctx, " EDITOR ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)
}

func TestCreateRoleValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	inactive := false

	cases := []struct {
		name string
		in   roles.CreateInput
	}{
		{"empty name", roles.CreateInput{Name: "  "}},
		{"name with spaces", roles.CreateInput{Name: "two words"}},
		{"single char", roles.CreateInput{Name: "a"}},
		{"blank permission", roles.CreateInput{Name: "ok-name", Permissions: []string{"read", ""}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrValidation))
		})
	}

	role, err := svc.Create(ctx, roles.CreateInput{Name: "dormant", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, role.IsActive)
}

func TestSetPermissionsReplacesWholeSet(t *testing.T) {
	svc, _, inv, _ := newService(t)
	ctx := context.Background()
	role, err := svc.Create(ctx, roles.CreateInput{Name: "editor", Permissions: []string{"read", "write"}})
	require.NoError(t, err)

	updated, err := svc.SetPermissions(ctx, role.ID, []string{"delete"})
	require.NoError(t, err)
	assert.Equal(t, []string{"delete"}, updated.Permissions.Slice())
	assert.Equal(t, []int64{role.ID}, inv.roleIDs)

	_, err = svc.SetPermissions(ctx, role.ID, []string{"delete"})
	require.NoError(t, err)
	assert.Len(t, inv.roleIDs, 1, "unchanged permissions do not invalidate")

	cleared, err := svc.SetPermissions(ctx, role.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, cleared.Permissions.Len())

	_, err = svc.SetPermissions(ctx, role.ID, []string{" "})
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = svc.SetPermissions(ctx, 999, []string{"read"})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestUpdateRole(t *testing.T) {
	svc, _, inv, audit := newService(t)
	ctx := context.Background()
	role, err := svc.Create(ctx, roles.CreateInput{Name: "editor"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, roles.CreateInput{Name: "viewer"})
	require.NoError(t, err)

	desc := "  edits things "
	updated, err := svc.Update(ctx, role.ID, roles.Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "edits things", updated.Description)
	assert.Empty(t, inv.roleIDs, "description changes do not affect grants")

	taken := "Viewer"
	_, err = svc.Update(ctx, role.ID, roles.Patch{Name: &taken})
	assert.True(t, errors.Is(err, shared.ErrConflict))

	updated, err = svc.SetActive(ctx, role.ID, false)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, []int64{role.ID}, inv.roleIDs)

	var actions []string
	for _, e := range audit.Entries() {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"role.create", "role.create", "role.update", "role.update"}, actions)
}

func TestDeleteRoleInUse(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	ledger := rbac.NewLedger(store.Assignments(), rbac.LedgerConfig{})

	account, err := store.Accounts().Create(ctx, users.Account{ID: uuid.NewString(), Email: "u1@example.com", IsActive: true})
	require.NoError(t, err)
	role, err := svc.Create(ctx, roles.CreateInput{Name: "editor", Permissions: []string{"read"}})
	require.NoError(t, err)

	assignment, err := ledger.Assign(ctx, account.ID, role.ID, nil)
	require.NoError(t, err)

	err = svc.Delete(ctx, role.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))
	assert.Equal(t, shared.MsgRoleInUse, shared.MessageOf(err))

	_, err = ledger.Revoke(ctx, assignment.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, role.ID))

	_, err = svc.Get(ctx, role.ID)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
	rows, err := ledger.ListByAccount(ctx, account.ID, false)
	require.NoError(t, err)
	assert.Empty(t, rows, "deleting the role cascades its inactive rows")

	_, err = store.Accounts().GetByID(ctx, account.ID)
	require.NoError(t, err)
}

func TestListRoles(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	inactive := false
	for _, name := range []string{"alpha", "beta", "gamma"} {
		_, err := svc.Create(ctx, roles.CreateInput{Name: name})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, roles.CreateInput{Name: "delta", Description: "legacy role", IsActive: &inactive})
	require.NoError(t, err)

	items, page, err := svc.List(ctx, roles.ListFilter{}, shared.NewPage(1, 2))
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, "alpha", items[0].Name)
	assert.Equal(t, 4, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.True(t, page.HasNext)

	active := true
	items, page, err = svc.List(ctx, roles.ListFilter{Active: &active}, shared.NewPage(1, 10))
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, items, 3)

	items, _, err = svc.List(ctx, roles.ListFilter{Search: "LEGACY"}, shared.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "delta", items[0].Name)
}

func TestConcurrentPatchesOfOneRoleAreNotLost(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		role, err := svc.Create(ctx, roles.CreateInput{Name: fmt.Sprintf("role-%d", i), Permissions: []string{"read"}})
		require.NoError(t, err)

		desc := fmt.Sprintf("description %d", i)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Update(ctx, role.ID, roles.Patch{Description: &desc})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.SetPermissions(ctx, role.ID, []string{"read", "write"})
			assert.NoError(t, err)
		}()
		wg.Wait()

		got, err := svc.Get(ctx, role.ID)
		require.NoError(t, err)
		assert.Equal(t, desc, got.Description)
		assert.Equal(t, []string{"read", "write"}, got.Permissions.Slice())
	}
}

type retryingRepo struct {
	roles.Repository
	applied int
}

func (r *retryingRepo) Update(ctx context.Context, id int64, apply func(*roles.Role) error) (roles.Role, error) {
	role := roles.Role{ID: id, Name: "editor", Permissions: rbac.NewPermissionSet("read")}
	for i := 0; i < 2; i++ {
		r.applied++
		if err := apply(&role); err != nil {
			return roles.Role{}, err
		}
		role = roles.Role{ID: id, Name: "editor", Permissions: rbac.NewPermissionSet("read", "write")}
	}
	return role, nil
}

func TestUpdateRecomputesInvalidationOnRetry(t *testing.T) {
	repo := &retryingRepo{}
	inv := &recordingInvalidator{}
	svc := roles.NewService(repo, roles.ServiceConfig{Invalidator: inv})

	perms := []string{"read", "write"}
	_, err := svc.Update(context.Background(), 7, roles.Patch{Permissions: &perms})
	require.NoError(t, err)
	assert.Equal(t, 2, repo.applied)
	assert.Empty(t, inv.roleIDs, "the final attempt saw no permission change")
}
