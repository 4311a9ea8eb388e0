package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// assignmentRepo implements rbac.Repository.
type assignmentRepo struct{ s *Store }

var _ rbac.Repository = assignmentRepo{}

// WithTx runs fn holding the store lock. Assignment changes made by fn are
// rolled back when it returns an error.
func (r assignmentRepo) WithTx(ctx context.Context, fn func(context.Context, rbac.TxRepository) error) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[int64]rbac.Assignment, len(s.assignments))
	for id, a := range s.assignments {
		snapshot[id] = a
	}
	nextID := s.nextAssignmentID
	if err := fn(ctx, txRepo{s}); err != nil {
		s.assignments = snapshot
		s.nextAssignmentID = nextID
		return err
	}
	return nil
}

// withRoleName fills the read-side role name. Callers hold s.mu.
func (s *Store) withRoleName(a rbac.Assignment) rbac.Assignment {
	a = copyAssignment(a)
	if role, ok := s.roles[a.RoleID]; ok {
		a.RoleName = role.Name
	}
	return a
}

func (s *Store) sortedAssignments(keep func(rbac.Assignment) bool) []rbac.Assignment {
	out := make([]rbac.Assignment, 0)
	for _, a := range s.assignments {
		if keep(a) {
			out = append(out, s.withRoleName(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r assignmentRepo) Get(_ context.Context, id int64) (rbac.Assignment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return rbac.Assignment{}, shared.NotFound("assignment not found")
	}
	return s.withRoleName(a), nil
}

func (r assignmentRepo) ListByAccount(_ context.Context, accountID string, activeOnly bool) ([]rbac.Assignment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAssignments(func(a rbac.Assignment) bool {
		return a.AccountID == accountID && (!activeOnly || a.IsActive)
	}), nil
}

func (r assignmentRepo) ListByRole(_ context.Context, roleID int64, activeOnly bool) ([]rbac.Assignment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedAssignments(func(a rbac.Assignment) bool {
		return a.RoleID == roleID && (!activeOnly || a.IsActive)
	}), nil
}

func (r assignmentRepo) Subject(_ context.Context, accountID string) (rbac.Subject, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return rbac.Subject{}, shared.NotFound("account not found")
	}
	return rbac.Subject{AccountID: a.ID, Email: a.Email, IsActive: a.IsActive, IsSuperuser: a.IsSuperuser}, nil
}

func (r assignmentRepo) ActiveGrants(_ context.Context, accountID string) ([]rbac.Grant, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var grants []rbac.Grant
	for _, a := range s.assignments {
		if a.AccountID != accountID || !a.IsActive {
			continue
		}
		role, ok := s.roles[a.RoleID]
		if !ok || !role.IsActive {
			continue
		}
		grants = append(grants, rbac.Grant{RoleID: role.ID, RoleName: role.Name, Permissions: copyPerms(role.Permissions)})
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].RoleName < grants[j].RoleName })
	return grants, nil
}

func (r assignmentRepo) Stats(_ context.Context, top int) (rbac.Stats, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := rbac.Stats{TotalRoles: len(s.roles), TotalAssignments: len(s.assignments), MostUsedRoles: []rbac.RoleUsage{}}
	for _, role := range s.roles {
		if role.IsActive {
			stats.ActiveRoles++
		}
	}
	usage := make(map[int64]int)
	for _, a := range s.assignments {
		if a.IsActive {
			stats.ActiveAssignments++
			usage[a.RoleID]++
		}
	}
	for roleID, n := range usage {
		stats.MostUsedRoles = append(stats.MostUsedRoles, rbac.RoleUsage{RoleID: roleID, Name: s.roles[roleID].Name, Assignments: n})
	}
	sort.Slice(stats.MostUsedRoles, func(i, j int) bool {
		a, b := stats.MostUsedRoles[i], stats.MostUsedRoles[j]
		if a.Assignments != b.Assignments {
			return a.Assignments > b.Assignments
		}
		return a.Name < b.Name
	})
	if top > 0 && len(stats.MostUsedRoles) > top {
		stats.MostUsedRoles = stats.MostUsedRoles[:top]
	}
	return stats, nil
}

// txRepo runs with s.mu held by WithTx.
type txRepo struct{ s *Store }

func (t txRepo) LockAccount(_ context.Context, accountID string) error {
	if _, ok := t.s.accounts[accountID]; !ok {
		return shared.NotFound("account not found")
	}
	return nil
}

func (t txRepo) LockRole(_ context.Context, roleID int64) (rbac.RoleState, error) {
	role, ok := t.s.roles[roleID]
	if !ok {
		return rbac.RoleState{}, shared.NotFound("role not found")
	}
	return rbac.RoleState{ID: role.ID, Name: role.Name, IsActive: role.IsActive}, nil
}

func (t txRepo) FindPair(_ context.Context, accountID string, roleID int64) (rbac.Assignment, bool, error) {
	for _, a := range t.s.assignments {
		if a.AccountID == accountID && a.RoleID == roleID {
			return t.s.withRoleName(a), true, nil
		}
	}
	return rbac.Assignment{}, false, nil
}

func (t txRepo) Lock(_ context.Context, id int64) (rbac.Assignment, error) {
	a, ok := t.s.assignments[id]
	if !ok {
		return rbac.Assignment{}, shared.NotFound("assignment not found")
	}
	return t.s.withRoleName(a), nil
}

func (t txRepo) Insert(_ context.Context, a rbac.Assignment) (rbac.Assignment, error) {
	for _, existing := range t.s.assignments {
		if existing.AccountID == a.AccountID && existing.RoleID == a.RoleID {
			return rbac.Assignment{}, shared.Conflict(shared.MsgAlreadyAssigned)
		}
	}
	t.s.nextAssignmentID++
	a.ID = t.s.nextAssignmentID
	a.IsActive = true
	a = copyAssignment(a)
	t.s.assignments[a.ID] = a
	return t.s.withRoleName(a), nil
}

func (t txRepo) Reactivate(_ context.Context, id int64, grantedBy *string, at time.Time) (rbac.Assignment, error) {
	a, ok := t.s.assignments[id]
	if !ok {
		return rbac.Assignment{}, shared.NotFound("assignment not found")
	}
	a.IsActive = true
	a.GrantedBy = grantedBy
	a.GrantedAt = at
	a = copyAssignment(a)
	t.s.assignments[id] = a
	return t.s.withRoleName(a), nil
}

func (t txRepo) Deactivate(_ context.Context, id int64) error {
	a, ok := t.s.assignments[id]
	if !ok {
		return shared.NotFound("assignment not found")
	}
	a.IsActive = false
	t.s.assignments[id] = a
	return nil
}
