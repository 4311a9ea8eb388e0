package rbac

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/jobready/authcore/internal/shared"
)

// PermissionSet is an unordered set of permission strings.
type PermissionSet map[string]struct{}

// NormalizePermission trims a permission string. Permissions are
// case-sensitive.
func NormalizePermission(p string) string {
	return strings.TrimSpace(p)
}

// NewPermissionSet builds a set from trusted input, dropping blanks.
func NewPermissionSet(perms ...string) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		p = NormalizePermission(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// ParsePermissions builds a set from user input. Blank entries are a
// validation error; duplicates collapse.
func ParsePermissions(perms []string) (PermissionSet, error) {
	set := make(PermissionSet, len(perms))
	for i, p := range perms {
		p = NormalizePermission(p)
		if p == "" {
			return nil, shared.Validation("permissions[" + strconv.Itoa(i) + "] must be a non-empty string")
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// Has reports membership.
func (s PermissionSet) Has(perm string) bool {
	if s == nil {
		return false
	}
	_, ok := s[NormalizePermission(perm)]
	return ok
}

// Len returns the number of permissions.
func (s PermissionSet) Len() int {
	return len(s)
}

// Union returns a new set holding every permission of s and others.
func (s PermissionSet) Union(others ...PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	for _, o := range others {
		for p := range o {
			out[p] = struct{}{}
		}
	}
	return out
}

// Equal reports whether both sets hold the same permissions.
func (s PermissionSet) Equal(o PermissionSet) bool {
	if len(s) != len(o) {
		return false
	}
	for p := range s {
		if _, ok := o[p]; !ok {
			return false
		}
	}
	return true
}

// Slice returns the permissions sorted.
func (s PermissionSet) Slice() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array of strings.
func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var perms []string
	if err := json.Unmarshal(data, &perms); err != nil {
		return err
	}
	*s = NewPermissionSet(perms...)
	return nil
}
