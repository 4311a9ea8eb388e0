package rbac

import (
	"context"
	"time"
)

// Repository defines persistence operations for the assignment ledger and
// the permission resolver.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Assignment, error)
	ListByAccount(ctx context.Context, accountID string, activeOnly bool) ([]Assignment, error)
	ListByRole(ctx context.Context, roleID int64, activeOnly bool) ([]Assignment, error)
	Subject(ctx context.Context, accountID string) (Subject, error)
	ActiveGrants(ctx context.Context, accountID string) ([]Grant, error)
	Stats(ctx context.Context, top int) (Stats, error)
}

// TxRepository is the transactional surface used by Assign and Revoke.
// Implementations hold locks on every row they return until the
// transaction ends, and translate a commit-time (account, role) uniqueness
// violation into a conflict.
type TxRepository interface {
	// LockAccount fails with a not-found error when the account is absent.
	LockAccount(ctx context.Context, accountID string) error
	// LockRole fails with a not-found error when the role is absent.
	LockRole(ctx context.Context, roleID int64) (RoleState, error)
	FindPair(ctx context.Context, accountID string, roleID int64) (Assignment, bool, error)
	Lock(ctx context.Context, id int64) (Assignment, error)
	Insert(ctx context.Context, a Assignment) (Assignment, error)
	Reactivate(ctx context.Context, id int64, grantedBy *string, at time.Time) (Assignment, error)
	Deactivate(ctx context.Context, id int64) error
}

// GrantSource feeds the Resolver.
type GrantSource interface {
	Subject(ctx context.Context, accountID string) (Subject, error)
	ActiveGrants(ctx context.Context, accountID string) ([]Grant, error)
}

// Invalidator drops cached principals after their grants change.
type Invalidator interface {
	InvalidateAccounts(ctx context.Context, accountIDs ...string) error
}

var _ GrantSource = Repository(nil)
