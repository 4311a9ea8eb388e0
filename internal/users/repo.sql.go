package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobready/authcore/internal/platform/db"
	"github.com/jobready/authcore/internal/shared"
)

const emailConstraint = "uq_accounts_email"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const accountColumns = `id::text, email, password_hash, first_name, last_name, is_active, is_superuser, is_verified, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.FirstName, &a.LastName,
		&a.IsActive, &a.IsSuperuser, &a.IsVerified, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, shared.NotFound("account not found")
	}
	return a, err
}

// Create inserts a new account.
func (r *PGRepository) Create(ctx context.Context, a Account) (Account, error) {
	out, err := scanAccount(r.pool.QueryRow(ctx, `INSERT INTO accounts
  (id, email, password_hash, first_name, last_name, is_active, is_superuser, is_verified, created_at, updated_at)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+accountColumns,
		a.ID, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.IsActive, a.IsSuperuser, a.IsVerified, a.CreatedAt, a.UpdatedAt))
	return out, translateErr(err)
}

// GetByID fetches an account by id.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Account, error) {
	uid, ok := db.UUIDArg(id)
	if !ok {
		return Account{}, shared.NotFound("account not found")
	}
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1::uuid`, uid))
}

// GetByEmail fetches an account by normalised email.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

// Update overwrites the mutable columns of an account.
func (r *PGRepository) Update(ctx context.Context, a Account) (Account, error) {
	uid, ok := db.UUIDArg(a.ID)
	if !ok {
		return Account{}, shared.NotFound("account not found")
	}
	out, err := scanAccount(r.pool.QueryRow(ctx, `UPDATE accounts SET
  email = $2, password_hash = $3, first_name = $4, last_name = $5,
  is_active = $6, is_superuser = $7, is_verified = $8, updated_at = $9
WHERE id = $1::uuid
RETURNING `+accountColumns,
		uid, a.Email, a.PasswordHash, a.FirstName, a.LastName, a.IsActive, a.IsSuperuser, a.IsVerified, a.UpdatedAt))
	return out, translateErr(err)
}

// Delete removes an account; role_assignments rows cascade.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	uid, ok := db.UUIDArg(id)
	if !ok {
		return shared.NotFound("account not found")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1::uuid`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("account not found")
	}
	return nil
}

// List returns one page of accounts and the total match count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter, page shared.Page) ([]Account, int, error) {
	where := `WHERE ($1::boolean IS NULL OR is_active = $1)
  AND ($2::text = '' OR email ILIKE '%' || $2 || '%' OR (first_name || ' ' || last_name) ILIKE '%' || $2 || '%')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts `+where, filter.Active, filter.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts `+where+`
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4`, filter.Active, filter.Search, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()
	accounts := make([]Account, 0, page.PerPage)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

func translateErr(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == emailConstraint {
		return shared.Conflict(shared.MsgEmailTaken)
	}
	return err
}
