package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

// ServiceConfig carries optional collaborators of the Service.
type ServiceConfig struct {
	BcryptCost  int
	Invalidator rbac.Invalidator
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Service handles account business logic.
type Service struct {
	repo        Repository
	cost        int
	invalidator rbac.Invalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
	validator   *validator.Validate

	dummyOnce sync.Once
	dummyHash []byte
}

// NewService builds Service instance.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
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
		cost:        cost,
		invalidator: cfg.Invalidator,
		audit:       cfg.Audit,
		logger:      logger,
		now:         now,
		validator:   shared.NewValidator(),
	}
}

// RegisterInput describes a new account.
type RegisterInput struct {
	Email     string `validate:"required,email,max=320"`
	Password  string `validate:"required,strongpassword,max=72"`
	FirstName string `validate:"max=100"`
	LastName  string `validate:"max=100"`
}

// Register validates input, hashes the password and stores a new active,
// unverified, non-superuser account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	in.Email = NormalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := shared.ValidateStruct(s.validator, in); err != nil {
		return Account{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Account{}, err
	}
	now := s.now().UTC()
	account, err := s.repo.Create(ctx, Account{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: string(hash),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, "account.register", account.ID, nil)
	return account, nil
}

// Authenticate checks credentials. Unknown email, inactive account and wrong
// password all yield shared.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	account, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.burnCompare(password)
			return Account{}, shared.ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, shared.ErrInvalidCredentials
	}
	if !account.IsActive {
		return Account{}, shared.ErrInvalidCredentials
	}
	return account, nil
}

// burnCompare spends one bcrypt comparison so unknown emails take as long
// as wrong passwords.
func (s *Service) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("authcore-dummy-password"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

type passwordChange struct {
	Current string `validate:"required"`
	Next    string `validate:"required,strongpassword,max=72"`
}

// ChangePassword verifies current and stores the bcrypt hash of next.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if err := shared.ValidateStruct(s.validator, passwordChange{Current: current, Next: next}); err != nil {
		return err
	}
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return shared.Validation("current password is incorrect")
	}
	if current == next {
		return shared.Validation("new password must differ from the current password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return err
	}
	account.PasswordHash = string(hash)
	account.UpdatedAt = s.now().UTC()
	if _, err := s.repo.Update(ctx, account); err != nil {
		return err
	}
	s.record(ctx, "account.password_change", account.ID, nil)
	return nil
}

// ProfileUpdate patches profile fields; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

// UpdateProfile applies a profile patch.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfileUpdate) (Account, error) {
	if err := shared.ValidateStruct(s.validator, patch); err != nil {
		return Account{}, err
	}
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if patch.FirstName != nil {
		account.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		account.LastName = strings.TrimSpace(*patch.LastName)
	}
	account.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, account)
}

// SetActive activates or deactivates an account.
func (s *Service) SetActive(ctx context.Context, id string, active bool) (Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.IsActive == active {
		return account, nil
	}
	account.IsActive = active
	account.UpdatedAt = s.now().UTC()
	account, err = s.repo.Update(ctx, account)
	if err != nil {
		return Account{}, err
	}
	action := "account.deactivate"
	if active {
		action = "account.activate"
	}
	s.invalidate(ctx, account.ID)
	s.record(ctx, action, account.ID, nil)
	return account, nil
}

// SetSuperuser toggles the superuser flag.
func (s *Service) SetSuperuser(ctx context.Context, id string, superuser bool) (Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	account.IsSuperuser = superuser
	account.UpdatedAt = s.now().UTC()
	account, err = s.repo.Update(ctx, account)
	if err != nil {
		return Account{}, err
	}
	s.invalidate(ctx, account.ID)
	s.record(ctx, "account.superuser", account.ID, map[string]any{"is_superuser": superuser})
	return account, nil
}

// MarkVerified flags the account's email as verified.
func (s *Service) MarkVerified(ctx context.Context, id string) (Account, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Account{}, err
	}
	if account.IsVerified {
		return account, nil
	}
	account.IsVerified = true
	account.UpdatedAt = s.now().UTC()
	return s.repo.Update(ctx, account)
}

// Delete hard-deletes an account. Its assignment rows go with it.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.record(ctx, "account.delete", id, nil)
	return nil
}

// Get returns an account by id.
func (s *Service) Get(ctx context.Context, id string) (Account, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail returns an account by email.
func (s *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return s.repo.GetByEmail(ctx, NormalizeEmail(email))
}

// List returns one page of accounts with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter, page shared.Page) ([]Account, shared.Pagination, error) {
	page = shared.NewPage(page.Page, page.PerPage)
	filter.Search = strings.TrimSpace(filter.Search)
	accounts, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return accounts, shared.NewPagination(page, total), nil
}

// EnsureSuperuser creates a verified superuser or promotes an existing
// account with the same email.
func (s *Service) EnsureSuperuser(ctx context.Context, email, password string) (Account, bool, error) {
	existing, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	switch {
	case err == nil:
		existing.IsSuperuser = true
		existing.IsActive = true
		existing.IsVerified = true
		existing.UpdatedAt = s.now().UTC()
		updated, err := s.repo.Update(ctx, existing)
		if err != nil {
			return Account{}, false, err
		}
		s.invalidate(ctx, updated.ID)
		return updated, false, nil
	case !errors.Is(err, shared.ErrNotFound):
		return Account{}, false, err
	}
	account, err := s.Register(ctx, RegisterInput{Email: email, Password: password})
	if err != nil {
		return Account{}, false, err
	}
	account.IsSuperuser = true
	account.IsVerified = true
	account, err = s.repo.Update(ctx, account)
	if err != nil {
		return Account{}, false, err
	}
	return account, true, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.InvalidateAccounts(ctx, id); err != nil {
		s.logger.Warn("invalidate principal", slog.String("account_id", id), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, action, id string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx),
		Action:   action,
		Entity:   "account",
		EntityID: id,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit account", slog.String("action", action), slog.Any("error", err))
	}
}
