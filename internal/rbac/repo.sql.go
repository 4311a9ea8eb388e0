package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobready/authcore/internal/platform/db"
	"github.com/jobready/authcore/internal/shared"
)

const pairConstraint = "uq_role_assignments_pair"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a read-committed transaction. Row locks taken by the
// TxRepository serialise competing writers on the same pair.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return translateErr(err)
}

const assignmentColumns = `a.id, a.account_id::text, a.role_id, r.name, a.granted_by::text, a.granted_at, a.is_active`

func scanAssignment(row pgx.Row) (Assignment, error) {
	var a Assignment
	if err := row.Scan(&a.ID, &a.AccountID, &a.RoleID, &a.RoleName, &a.GrantedBy, &a.GrantedAt, &a.IsActive); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func collectAssignments(rows pgx.Rows) ([]Assignment, error) {
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns one assignment.
func (r *PGRepository) Get(ctx context.Context, id int64) (Assignment, error) {
	a, err := scanAssignment(r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, shared.NotFound("assignment not found")
	}
	return a, err
}

// ListByAccount returns the assignments of an account ordered by grant time.
func (r *PGRepository) ListByAccount(ctx context.Context, accountID string, activeOnly bool) ([]Assignment, error) {
	uid, ok := db.UUIDArg(accountID)
	if !ok {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.account_id = $1::uuid AND (NOT $2 OR a.is_active)
ORDER BY a.granted_at, a.id`, uid, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// ListByRole returns the assignments referencing a role.
func (r *PGRepository) ListByRole(ctx context.Context, roleID int64, activeOnly bool) ([]Assignment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.role_id = $1 AND (NOT $2 OR a.is_active)
ORDER BY a.granted_at, a.id`, roleID, activeOnly)
	if err != nil {
		return nil, err
	}
	return collectAssignments(rows)
}

// Subject loads the account facts needed for resolution.
func (r *PGRepository) Subject(ctx context.Context, accountID string) (Subject, error) {
	uid, ok := db.UUIDArg(accountID)
	if !ok {
		return Subject{}, shared.NotFound("account not found")
	}
	var s Subject
	err := r.pool.QueryRow(ctx, `SELECT id::text, email, is_active, is_superuser
FROM accounts WHERE id = $1::uuid`, uid).Scan(&s.AccountID, &s.Email, &s.IsActive, &s.IsSuperuser)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subject{}, shared.NotFound("account not found")
	}
	return s, err
}

// ActiveGrants returns roles reachable through active assignments to
// active roles.
func (r *PGRepository) ActiveGrants(ctx context.Context, accountID string) ([]Grant, error) {
	uid, ok := db.UUIDArg(accountID)
	if !ok {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, r.permissions
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.account_id = $1::uuid AND a.is_active AND r.is_active
ORDER BY r.name`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var (
			g     Grant
			perms []string
		)
		if err := rows.Scan(&g.RoleID, &g.RoleName, &perms); err != nil {
			return nil, err
		}
		g.Permissions = NewPermissionSet(perms...)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Stats summarises roles and assignments.
func (r *PGRepository) Stats(ctx context.Context, top int) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM roles),
  (SELECT COUNT(*) FROM roles WHERE is_active),
  (SELECT COUNT(*) FROM role_assignments),
  (SELECT COUNT(*) FROM role_assignments WHERE is_active)`).
		Scan(&s.TotalRoles, &s.ActiveRoles, &s.TotalAssignments, &s.ActiveAssignments)
	if err != nil {
		return Stats{}, fmt.Errorf("rbac: stats totals: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, COUNT(a.id) AS n
FROM roles r JOIN role_assignments a ON a.role_id = r.id AND a.is_active
GROUP BY r.id, r.name
ORDER BY n DESC, r.name
LIMIT $1`, top)
	if err != nil {
		return Stats{}, fmt.Errorf("rbac: stats usage: %w", err)
	}
	defer rows.Close()
	s.MostUsedRoles = []RoleUsage{}
	for rows.Next() {
		var u RoleUsage
		if err := rows.Scan(&u.RoleID, &u.Name, &u.Assignments); err != nil {
			return Stats{}, err
		}
		s.MostUsedRoles = append(s.MostUsedRoles, u)
	}
	return s, rows.Err()
}

func (t *txRepo) LockAccount(ctx context.Context, accountID string) error {
	uid, ok := db.UUIDArg(accountID)
	if !ok {
		return shared.NotFound("account not found")
	}
	var id string
	err := t.tx.QueryRow(ctx, `SELECT id::text FROM accounts WHERE id = $1::uuid FOR SHARE`, uid).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.NotFound("account not found")
	}
	return err
}

func (t *txRepo) LockRole(ctx context.Context, roleID int64) (RoleState, error) {
	var s RoleState
	err := t.tx.QueryRow(ctx, `SELECT id, name, is_active FROM roles WHERE id = $1 FOR SHARE`, roleID).
		Scan(&s.ID, &s.Name, &s.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return RoleState{}, shared.NotFound("role not found")
	}
	return s, err
}

func (t *txRepo) FindPair(ctx context.Context, accountID string, roleID int64) (Assignment, bool, error) {
	uid, ok := db.UUIDArg(accountID)
	if !ok {
		return Assignment{}, false, nil
	}
	a, err := scanAssignment(t.tx.QueryRow(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.account_id = $1::uuid AND a.role_id = $2
FOR UPDATE OF a`, uid, roleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, err
	}
	return a, true, nil
}

func (t *txRepo) Lock(ctx context.Context, id int64) (Assignment, error) {
	a, err := scanAssignment(t.tx.QueryRow(ctx, `SELECT `+assignmentColumns+`
FROM role_assignments a JOIN roles r ON r.id = a.role_id
WHERE a.id = $1
FOR UPDATE OF a`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, shared.NotFound("assignment not found")
	}
	return a, err
}

func (t *txRepo) Insert(ctx context.Context, a Assignment) (Assignment, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO role_assignments (account_id, role_id, granted_by, granted_at, is_active)
VALUES ($1::uuid, $2, $3::uuid, $4, TRUE)
RETURNING id`, a.AccountID, a.RoleID, a.GrantedBy, a.GrantedAt).Scan(&a.ID)
	if err != nil {
		return Assignment{}, translateErr(err)
	}
	a.IsActive = true
	return a, nil
}

func (t *txRepo) Reactivate(ctx context.Context, id int64, grantedBy *string, at time.Time) (Assignment, error) {
	_, err := t.tx.Exec(ctx, `UPDATE role_assignments
SET is_active = TRUE, granted_by = $2::uuid, granted_at = $3
WHERE id = $1`, id, grantedBy, at)
	if err != nil {
		return Assignment{}, err
	}
	return t.Lock(ctx, id)
}

func (t *txRepo) Deactivate(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `UPDATE role_assignments SET is_active = FALSE WHERE id = $1`, id)
	return err
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if constraint, ok := db.UniqueViolation(err); ok && constraint == pairConstraint {
		return shared.Conflict(shared.MsgAlreadyAssigned)
	}
	return err
}
