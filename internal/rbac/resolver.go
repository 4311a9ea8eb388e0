package rbac

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"

	"github.com/jobready/authcore/internal/shared"
)

// PrincipalCache is a read-through cache for resolved principals. Set must
// drop the write when the account was invalidated after generation was read.
type PrincipalCache interface {
	Get(ctx context.Context, accountID string) (Principal, bool, error)
	Generation(ctx context.Context, accountID string) (int64, error)
	Set(ctx context.Context, p Principal, generation int64) error
	Invalidator
}

// Resolver derives principals from account and grant data.
type Resolver struct {
	source GrantSource
	cache  PrincipalCache
	logger *slog.Logger
	group  singleflight.Group
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithCache enables read-through caching.
func WithCache(cache PrincipalCache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// WithLogger sets the logger used for cache failures.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(source GrantSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{source: source, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve builds the Principal for accountID. Concurrent calls for the same
// account share one storage round-trip.
func (r *Resolver) Resolve(ctx context.Context, accountID string) (Principal, error) {
	if accountID == "" {
		return Principal{}, shared.NotFound("account not found")
	}
	if r.cache != nil {
		p, ok, err := r.cache.Get(ctx, accountID)
		if err != nil {
			r.logger.Warn("principal cache get", slog.String("account_id", accountID), slog.Any("error", err))
		} else if ok {
			return p, nil
		}
	}

	ch := r.group.DoChan(accountID, func() (any, error) {
		return r.load(context.WithoutCancel(ctx), accountID)
	})
	select {
	case <-ctx.Done():
		return Principal{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Principal{}, res.Err
		}
		return res.Val.(Principal), nil
	}
}

func (r *Resolver) load(ctx context.Context, accountID string) (Principal, error) {
	cacheable := r.cache != nil
	var generation int64
	if cacheable {
		gen, err := r.cache.Generation(ctx, accountID)
		if err != nil {
			r.logger.Warn("principal cache generation", slog.String("account_id", accountID), slog.Any("error", err))
			cacheable = false
		}
		generation = gen
	}
	subject, err := r.source.Subject(ctx, accountID)
	if err != nil {
		return Principal{}, err
	}
	grants, err := r.source.ActiveGrants(ctx, accountID)
	if err != nil {
		return Principal{}, err
	}
	p := BuildPrincipal(subject, grants)
	if cacheable {
		if err := r.cache.Set(ctx, p, generation); err != nil {
			r.logger.Warn("principal cache set", slog.String("account_id", accountID), slog.Any("error", err))
		}
	}
	return p, nil
}

// BuildPrincipal unions the permission sets of grants.
func BuildPrincipal(subject Subject, grants []Grant) Principal {
	sets := make([]PermissionSet, 0, len(grants))
	seen := make(map[string]struct{}, len(grants))
	roles := make([]string, 0, len(grants))
	for _, g := range grants {
		sets = append(sets, g.Permissions)
		name := NormalizeName(g.RoleName)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		roles = append(roles, name)
	}
	sort.Strings(roles)
	perms := NewPermissionSet().Union(sets...)
	return Principal{
		AccountID:   subject.AccountID,
		Email:       subject.Email,
		Permissions: perms,
		Roles:       roles,
		IsSuperuser: subject.IsSuperuser || perms.Has(shared.PermAdmin),
		IsActive:    subject.IsActive,
	}
}

// HasPermission is pure membership of perm in the principal's set.
func HasPermission(p Principal, perm string) bool {
	return p.HasPermission(perm)
}

// HasRole reports case-insensitive role membership.
func HasRole(p Principal, name string) bool {
	return p.HasRole(name)
}
