package app

import (
	"log/slog"
	"time"

	"github.com/jobready/authcore/internal/audit"
	"github.com/jobready/authcore/internal/auth"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/roles"
	"github.com/jobready/authcore/internal/shared"
	"github.com/jobready/authcore/internal/users"
)

// Stores groups the repository contracts. Audit is optional.
type Stores struct {
	Accounts    users.Repository
	Roles       roles.Repository
	Assignments rbac.Repository
	Audit       audit.Repository
}

// ServiceDeps collects everything needed to build the service graph.
type ServiceDeps struct {
	Stores Stores
	Tokens auth.TokenConfig
	// Cache enables read-through principal caching when set.
	Cache rbac.PrincipalCache
	// Invalidator defaults to Cache.
	Invalidator rbac.Invalidator
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	BcryptCost  int
	Clock       func() time.Time
}

// Services is the wired domain layer.
type Services struct {
	Users         *users.Service
	Roles         *roles.Service
	Ledger        *rbac.Ledger
	Resolver      *rbac.Resolver
	Tokens        *auth.TokenManager
	Authenticator *auth.Authenticator
	Auth          *auth.Service
	// Audit is nil when no audit timeline source is available.
	Audit *audit.Service
}

// NewServices wires the domain services.
func NewServices(deps ServiceDeps) (*Services, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tokens, err := auth.NewTokenManager(deps.Tokens, deps.Clock)
	if err != nil {
		return nil, err
	}
	invalidator := deps.Invalidator
	if invalidator == nil && deps.Cache != nil {
		invalidator = deps.Cache
	}

	resolverOpts := []rbac.ResolverOption{rbac.WithLogger(logger)}
	if deps.Cache != nil {
		resolverOpts = append(resolverOpts, rbac.WithCache(deps.Cache))
	}
	resolver := rbac.NewResolver(deps.Stores.Assignments, resolverOpts...)

	ledger := rbac.NewLedger(deps.Stores.Assignments, rbac.LedgerConfig{
		Invalidator: invalidator,
		Audit:       deps.Audit,
		Logger:      logger,
		Clock:       deps.Clock,
	})
	userService := users.NewService(deps.Stores.Accounts, users.ServiceConfig{
		BcryptCost:  deps.BcryptCost,
		Invalidator: invalidator,
		Audit:       deps.Audit,
		Logger:      logger,
		Clock:       deps.Clock,
	})
	roleService := roles.NewService(deps.Stores.Roles, roles.ServiceConfig{
		Invalidator: ledger,
		Audit:       deps.Audit,
		Logger:      logger,
		Clock:       deps.Clock,
	})
	timeline := deps.Stores.Audit
	if timeline == nil {
		if mem, ok := deps.Audit.(*shared.MemoryAuditLog); ok {
			timeline = audit.NewMemoryRepository(mem)
		}
	}
	var auditService *audit.Service
	if timeline != nil {
		auditService = audit.NewService(timeline)
	}

	return &Services{
		Users:         userService,
		Roles:         roleService,
		Ledger:        ledger,
		Resolver:      resolver,
		Tokens:        tokens,
		Authenticator: auth.NewAuthenticator(tokens, resolver),
		Auth:          auth.NewService(userService, tokens),
		Audit:         auditService,
	}, nil
}
