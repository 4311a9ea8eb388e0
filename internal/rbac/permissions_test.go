package rbac

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobready/authcore/internal/shared"
)

func TestParsePermissions(t *testing.T) {
	set, err := ParsePermissions([]string{" users.view ", "users.view", "roles.edit"})
	require.NoError(t, err)
	assert.Equal(t, []string{"roles.edit", "users.view"}, set.Slice())

	mixed, err := ParsePermissions([]string{"Resumes.Read", "resumes.read"})
	require.NoError(t, err)
	assert.Equal(t, 2, mixed.Len(), "permissions differing only in case stay distinct")
	assert.True(t, mixed.Has("Resumes.Read"))
	assert.False(t, mixed.Has("RESUMES.READ"))

	_, err = ParsePermissions([]string{"users.view", "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.Contains(t, err.Error(), "permissions[1]")

	empty, err := ParsePermissions(nil)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Zero(t, empty.Len())
}

func TestPermissionSetOperations(t *testing.T) {
	a := NewPermissionSet("read", "write")
	b := NewPermissionSet("write", "delete", "")

	union := a.Union(b)
	assert.Equal(t, []string{"delete", "read", "write"}, union.Slice())
	assert.Equal(t, 2, a.Len(), "union must not mutate the receiver")
	assert.True(t, union.Has(" delete "))
	assert.False(t, union.Has("DELETE"))
	assert.False(t, PermissionSet(nil).Has("read"))

	assert.True(t, a.Equal(NewPermissionSet("write", "read")))
	assert.False(t, a.Equal(b))
}

func TestPermissionSetJSON(t *testing.T) {
	raw, err := json.Marshal(NewPermissionSet("b", "a"))
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, string(raw))

	var decoded PermissionSet
	require.NoError(t, json.Unmarshal([]byte(`["X"," y ",""]`), &decoded))
	assert.Equal(t, []string{"X", "y"}, decoded.Slice())
}

func TestPrincipalChecks(t *testing.T) {
	p := Principal{Permissions: NewPermissionSet("users.view"), Roles: []string{"viewer"}}
	assert.True(t, HasPermission(p, "users.view"))
	assert.False(t, HasPermission(p, "users.edit"))
	assert.True(t, HasRole(p, " Viewer "))
	assert.False(t, HasRole(p, "admin"))

	assert.True(t, p.AllowsAny("users.edit", "users.view"))
	assert.False(t, p.AllowsAll("users.edit", "users.view"))

	super := Principal{IsSuperuser: true}
	assert.False(t, super.HasPermission("users.edit"), "membership ignores superuser status")
	assert.True(t, super.Allows("users.edit"))
	assert.True(t, super.AllowsAll("users.edit", "roles.edit"))
}
