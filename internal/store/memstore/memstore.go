// Package memstore is an in-memory implementation of the account, role and
// assignment repositories. It enforces the same uniqueness, cascade and
// in-use rules as the PostgreSQL schema and is safe for concurrent use.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
)

// Store holds every table behind one mutex.
type Store struct {
	mu sync.Mutex

	accounts map[string]users.Account
	emails   map[string]string

	roles      map[int64]roles.Role
	roleNames  map[string]int64
	nextRoleID int64

	assignments      map[int64]rbac.Assignment
	nextAssignmentID int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:    make(map[string]users.Account),
		emails:      make(map[string]string),
		roles:       make(map[int64]roles.Role),
		roleNames:   make(map[string]int64),
		assignments: make(map[int64]rbac.Assignment),
	}
}

// Accounts returns the users.Repository view of the store.
func (s *Store) Accounts() users.Repository { return accountRepo{s} }

// Roles returns the roles.Repository view of the store.
func (s *Store) Roles() roles.Repository { return roleRepo{s} }

// Assignments returns the rbac.Repository view of the store.
func (s *Store) Assignments() rbac.Repository { return assignmentRepo{s} }

func copyPerms(set rbac.PermissionSet) rbac.PermissionSet {
	return rbac.NewPermissionSet().Union(set)
}

func copyRole(r roles.Role) roles.Role {
	r.Permissions = copyPerms(r.Permissions)
	return r
}

func copyAssignment(a rbac.Assignment) rbac.Assignment {
	if a.GrantedBy != nil {
		v := *a.GrantedBy
		a.GrantedBy = &v
	}
	return a
}

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

func window[T any](items []T, page shared.Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// accountRepo implements users.Repository.
type accountRepo struct{ s *Store }

var _ users.Repository = accountRepo{}

func (r accountRepo) Create(_ context.Context, a users.Account) (users.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, taken := s.emails[a.Email]; taken {
		return users.Account{}, shared.Conflict(shared.MsgEmailTaken)
	}
	if _, exists := s.accounts[a.ID]; exists {
		return users.Account{}, shared.Conflict("account id already exists")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
		a.UpdatedAt = a.CreatedAt
	}
	s.accounts[a.ID] = a
	s.emails[a.Email] = a.ID
	return a, nil
}

func (r accountRepo) GetByID(_ context.Context, id string) (users.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return users.Account{}, shared.NotFound("account not found")
	}
	return a, nil
}

func (r accountRepo) GetByEmail(_ context.Context, email string) (users.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.emails[email]
	if !ok {
		return users.Account{}, shared.NotFound("account not found")
	}
	return s.accounts[id], nil
}

func (r accountRepo) Update(_ context.Context, a users.Account) (users.Account, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.accounts[a.ID]
	if !ok {
		return users.Account{}, shared.NotFound("account not found")
	}
	if a.Email != current.Email {
		if _, taken := s.emails[a.Email]; taken {
			return users.Account{}, shared.Conflict(shared.MsgEmailTaken)
		}
		delete(s.emails, current.Email)
		s.emails[a.Email] = a.ID
	}
	a.CreatedAt = current.CreatedAt
	s.accounts[a.ID] = a
	return a, nil
}

// Delete removes the account and, like ON DELETE CASCADE, every assignment
// row that references it.
func (r accountRepo) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return shared.NotFound("account not found")
	}
	delete(s.accounts, id)
	delete(s.emails, a.Email)
	for aid, asg := range s.assignments {
		if asg.AccountID == id {
			delete(s.assignments, aid)
		}
	}
	return nil
}

func (r accountRepo) List(_ context.Context, filter users.ListFilter, page shared.Page) ([]users.Account, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]users.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if filter.Active != nil && a.IsActive != *filter.Active {
			continue
		}
		if !matches(filter.Search, a.Email, a.FullName()) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return window(out, page), len(out), nil
}

// roleRepo implements roles.Repository.
type roleRepo struct{ s *Store }

var _ roles.Repository = roleRepo{}

func (r roleRepo) Create(_ context.Context, role roles.Role) (roles.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.roleNames[role.Name]; taken {
		return roles.Role{}, shared.Conflict(shared.MsgRoleNameTaken)
	}
	s.nextRoleID++
	role.ID = s.nextRoleID
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
		role.UpdatedAt = role.CreatedAt
	}
	role = copyRole(role)
	s.roles[role.ID] = role
	s.roleNames[role.Name] = role.ID
	return copyRole(role), nil
}

func (r roleRepo) GetByID(_ context.Context, id int64) (roles.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return roles.Role{}, shared.NotFound("role not found")
	}
	return copyRole(role), nil
}

func (r roleRepo) GetByName(_ context.Context, name string) (roles.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.roleNames[name]
	if !ok {
		return roles.Role{}, shared.NotFound("role not found")
	}
	return copyRole(s.roles[id]), nil
}

func (r roleRepo) Update(_ context.Context, id int64, apply func(*roles.Role) error) (roles.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.roles[id]
	if !ok {
		return roles.Role{}, shared.NotFound("role not found")
	}
	role := copyRole(current)
	if err := apply(&role); err != nil {
		return roles.Role{}, err
	}
	role.ID = id
	if role.Name != current.Name {
		if _, taken := s.roleNames[role.Name]; taken {
			return roles.Role{}, shared.Conflict(shared.MsgRoleNameTaken)
		}
		delete(s.roleNames, current.Name)
		s.roleNames[role.Name] = role.ID
	}
	role.CreatedAt = current.CreatedAt
	role = copyRole(role)
	s.roles[role.ID] = role
	return copyRole(role), nil
}

// Delete refuses while an active assignment references the role, then
// removes the role together with its inactive assignment rows.
func (r roleRepo) Delete(_ context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return shared.NotFound("role not found")
	}
	for _, a := range s.assignments {
		if a.RoleID == id && a.IsActive {
			return shared.Conflict(shared.MsgRoleInUse)
		}
	}
	for aid, a := range s.assignments {
		if a.RoleID == id {
			delete(s.assignments, aid)
		}
	}
	delete(s.roles, id)
	delete(s.roleNames, role.Name)
	return nil
}

func (r roleRepo) List(_ context.Context, filter roles.ListFilter, page shared.Page) ([]roles.Role, int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roles.Role, 0, len(s.roles))
	for _, role := range s.roles {
		if filter.Active != nil && role.IsActive != *filter.Active {
			continue
		}
		if !matches(filter.Search, role.Name, role.Description) {
			continue
		}
		out = append(out, copyRole(role))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return window(out, page), len(out), nil
}
