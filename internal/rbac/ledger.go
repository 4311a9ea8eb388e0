package rbac

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jobready/authcore/internal/shared"
)

// LedgerConfig carries optional collaborators of the Ledger.
type LedgerConfig struct {
	Invalidator Invalidator
	Audit       shared.AuditRecorder
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Ledger manages role assignments.
type Ledger struct {
	repo        Repository
	invalidator Invalidator
	audit       shared.AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger(repo Repository, cfg LedgerConfig) *Ledger {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, invalidator: cfg.Invalidator, audit: cfg.Audit, logger: logger, now: now}
}

// Assign grants roleID to accountID. A previously revoked assignment for the
// same pair is reactivated in place instead of inserting a second row.
func (l *Ledger) Assign(ctx context.Context, accountID string, roleID int64, grantedBy *string) (Assignment, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Assignment{}, shared.Validation("account_id is required")
	}
	if roleID <= 0 {
		return Assignment{}, shared.Validation("role_id must be positive")
	}
	if grantedBy != nil && strings.TrimSpace(*grantedBy) == "" {
		grantedBy = nil
	}

	var result Assignment
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		if !role.IsActive {
			return shared.Conflict(shared.MsgRoleInactive)
		}
		existing, found, err := tx.FindPair(ctx, accountID, roleID)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		switch {
		case found && existing.IsActive:
			return shared.Conflict(shared.MsgAlreadyAssigned)
		case found:
			result, err = tx.Reactivate(ctx, existing.ID, grantedBy, now)
		default:
			result, err = tx.Insert(ctx, Assignment{
				AccountID: accountID,
				RoleID:    roleID,
				RoleName:  role.Name,
				GrantedBy: grantedBy,
				GrantedAt: now,
				IsActive:  true,
			})
		}
		return err
	})
	if err != nil {
		return Assignment{}, err
	}

	l.afterChange(ctx, "role.assign", result)
	return result, nil
}

// Revoke deactivates an assignment. Revoking an inactive assignment is a
// no-op; the row is never deleted.
func (l *Ledger) Revoke(ctx context.Context, assignmentID int64) (Assignment, error) {
	if assignmentID <= 0 {
		return Assignment{}, shared.Validation("assignment id must be positive")
	}
	var (
		result  Assignment
		changed bool
	)
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, assignmentID)
		if err != nil {
			return err
		}
		result = current
		if !current.IsActive {
			return nil
		}
		if err := tx.Deactivate(ctx, assignmentID); err != nil {
			return err
		}
		result.IsActive = false
		changed = true
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}
	if changed {
		l.afterChange(ctx, "role.revoke", result)
	}
	return result, nil
}

// Get returns one assignment.
func (l *Ledger) Get(ctx context.Context, assignmentID int64) (Assignment, error) {
	return l.repo.Get(ctx, assignmentID)
}

// ListByAccount returns the assignments of an account.
func (l *Ledger) ListByAccount(ctx context.Context, accountID string, activeOnly bool) ([]Assignment, error) {
	return l.repo.ListByAccount(ctx, accountID, activeOnly)
}

// ListByRole returns the assignments referencing a role.
func (l *Ledger) ListByRole(ctx context.Context, roleID int64, activeOnly bool) ([]Assignment, error) {
	return l.repo.ListByRole(ctx, roleID, activeOnly)
}

// Stats summarises role usage.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	return l.repo.Stats(ctx, 5)
}

// InvalidateRole drops cached principals of every account linked to roleID.
// Used after a role's permission set or active flag changes.
func (l *Ledger) InvalidateRole(ctx context.Context, roleID int64) error {
	if l.invalidator == nil {
		return nil
	}
	assignments, err := l.repo.ListByRole(ctx, roleID, false)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.AccountID)
	}
	if len(ids) == 0 {
		return nil
	}
	return l.invalidator.InvalidateAccounts(ctx, ids...)
}

func (l *Ledger) afterChange(ctx context.Context, action string, a Assignment) {
	if l.invalidator != nil {
		if err := l.invalidator.InvalidateAccounts(ctx, a.AccountID); err != nil {
			l.logger.Warn("invalidate principal", slog.String("account_id", a.AccountID), slog.Any("error", err))
		}
	}
	if l.audit != nil {
		entry := shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   action,
			Entity:   "role_assignment",
			EntityID: strconv.FormatInt(a.ID, 10),
			Meta: map[string]any{
				"account_id": a.AccountID,
				"role_id":    a.RoleID,
			},
		}
		if err := l.audit.Record(ctx, entry); err != nil {
			l.logger.Warn("audit role assignment", slog.String("action", action), slog.Any("error", err))
		}
	}
}
