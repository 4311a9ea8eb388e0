package roles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// RoleInvalidator drops cached principals of every account linked to a
// role. *rbac.Ledger satisfies it.
type RoleInvalidator interface {
	InvalidateRole(ctx context.Context, roleID int64) error
}

// ServiceConfig carries optional collaborators of the Service.
type ServiceConfig struct {
	Invalidator RoleInvalidator
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service handles role business logic.
type Service struct {
	repo        Repository
	invalidator RoleInvalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
	validator   *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		invalidator: cfg.Invalidator,
		audit:       cfg.Audit,
		logger:      logger,
		now:         now,
		validator:   shared.NewValidator(),
	}
}

// Create validates and stores a new role. Roles are active unless the input
// says otherwise.
func (s *Service) Create(ctx context.Context, in CreateInput) (Role, error) {
	in.Name = rbac.NormalizeName(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if err := shared.ValidateStruct(s.validator, in); err != nil {
		return Role{}, err
	}
	perms, err := rbac.ParsePermissions(in.Permissions)
	if err != nil {
		return Role{}, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := s.now().UTC()
	role, err := s.repo.Create(ctx, Role{
		Name:        in.Name,
		Description: in.Description,
		Permissions: perms,
		IsActive:    active,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Role{}, err
	}
	s.record(ctx, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// Get returns a role by id.
func (s *Service) Get(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByName returns a role by name, ignoring case.
func (s *Service) GetByName(ctx context.Context, name string) (Role, error) {
	return s.repo.GetByName(ctx, rbac.NormalizeName(name))
}

// List returns one page of roles with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Page) ([]Role, shared.Pagination, error) {
	page = shared.NewPage(page.Page, page.PerPage)
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, total), nil
}

// Update applies a patch.
func (s *Service) Update(ctx context.Context, id int64, patch Patch) (Role, error) {
	if patch.Name != nil {
		name := rbac.NormalizeName(*patch.Name)
		patch.Name = &name
	}
	if err := shared.ValidateStruct(s.validator, patch); err != nil {
		return Role{}, err
	}
	var perms rbac.PermissionSet
	if patch.Permissions != nil {
		parsed, err := rbac.ParsePermissions(*patch.Permissions)
		if err != nil {
			return Role{}, err
		}
		perms = parsed
	}
	var affectsGrants bool
	role, err := s.repo.Update(ctx, id, func(role *Role) error {
		affectsGrants = false
		if patch.Name != nil && *patch.Name != role.Name {
			role.Name = *patch.Name
			affectsGrants = true
		}
		if patch.Description != nil {
			role.Description = strings.TrimSpace(*patch.Description)
		}
		if perms != nil && !perms.Equal(role.Permissions) {
			role.Permissions = perms
			affectsGrants = true
		}
		if patch.IsActive != nil && *patch.IsActive != role.IsActive {
			role.IsActive = *patch.IsActive
			affectsGrants = true
		}
		role.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return Role{}, err
	}
	if affectsGrants {
		s.invalidate(ctx, role.ID)
	}
	s.record(ctx, "role.update", role.ID, nil)
	return role, nil
}

// SetPermissions replaces the role's permission set.
func (s *Service) SetPermissions(ctx context.Context, id int64, perms []string) (Role, error) {
	if perms == nil {
		perms = []string{}
	}
	return s.Update(ctx, id, Patch{Permissions: &perms})
}

// SetActive activates or deactivates a role. Assignments to an inactive
// role stop contributing permissions but are kept.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (Role, error) {
	return s.Update(ctx, id, Patch{IsActive: &active})
}

// Delete removes a role no active assignment references.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, "role.delete", id, nil)
	return nil
}

func (s *Service) invalidate(ctx context.Context, roleID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateRole(ctx, roleID); err != nil {
		s.logger.Warn("invalidate role holders", slog.Int64("role_id", roleID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit role", slog.String("action", action), slog.Any("error", err))
	}
}
