package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobready/authcore/internal/platform/db"
	"github.com/jobready/authcore/internal/rbac"
	"github.com/jobready/authcore/internal/shared"
)

const nameConstraint = "uq_roles_name"

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const roleColumns = `id, name, description, permissions, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role  Role
		perms []string
	)
	err := row.Scan(&role.ID, &role.Name, &role.Description, &perms, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, shared.NotFound("role not found")
	}
	if err != nil {
		return Role{}, err
	}
	role.Permissions = rbac.NewPermissionSet(perms...)
	return role, nil
}

func encodePermissions(set rbac.PermissionSet) (string, error) {
	raw, err := json.Marshal(set.Slice())
	if err != nil {
		return "", fmt.Errorf("roles: encode permissions: %w", err)
	}
	return string(raw), nil
}

// Create inserts a role.
func (r *PGRepository) Create(ctx context.Context, role Role) (Role, error) {
	perms, err := encodePermissions(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	out, err := scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, description, permissions, is_active, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6)
RETURNING `+roleColumns, role.Name, role.Description, perms, role.IsActive, role.CreatedAt, role.UpdatedAt))
	return out, translateErr(err)
}

// GetByID fetches a role.
func (r *PGRepository) GetByID(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// GetByName fetches a role by normalised name.
func (r *PGRepository) GetByName(ctx context.Context, name string) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
}

const updateAttempts = 3

// Update locks the role row, applies the change and writes it back. A
// transaction that loses a race on the row is retried on a fresh snapshot.
func (r *PGRepository) Update(ctx context.Context, id int64, apply func(*Role) error) (Role, error) {
	var (
		out Role
		err error
	)
	for attempt := 0; attempt < updateAttempts; attempt++ {
		err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
			role, err := scanRole(tx.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1 FOR UPDATE`, id))
			if err != nil {
				return err
			}
			if err := apply(&role); err != nil {
				return err
			}
			perms, err := encodePermissions(role.Permissions)
			if err != nil {
				return err
			}
			out, err = scanRole(tx.QueryRow(ctx, `UPDATE roles SET
  name = $2, description = $3, permissions = $4::jsonb, is_active = $5, updated_at = $6
WHERE id = $1
RETURNING `+roleColumns, id, role.Name, role.Description, perms, role.IsActive, role.UpdatedAt))
			return err
		})
		if !db.SerializationFailure(err) {
			break
		}
	}
	if db.SerializationFailure(err) {
		return Role{}, shared.Conflict(shared.MsgRoleBusy)
	}
	return out, translateErr(err)
}

// Delete removes a role that no active assignment references. The role row
// is locked so a concurrent assignment waits for the outcome.
func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.NotFound("role not found")
		}
		if err != nil {
			return err
		}
		var active int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM role_assignments WHERE role_id = $1 AND is_active`, id).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return shared.Conflict(shared.MsgRoleInUse)
		}
		_, err = tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		return err
	})
}

// List returns one page of roles and the total match count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter, page shared.Page) ([]Role, int, error) {
	where := `WHERE ($1::boolean IS NULL OR is_active = $1)
  AND ($2::text = '' OR name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')`
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles `+where, filter.Active, filter.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("roles: count: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles `+where+`
ORDER BY name
LIMIT $3 OFFSET $4`, filter.Active, filter.Search, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()
	out := make([]Role, 0, page.PerPage)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, role)
	}
	return out, total, rows.Err()
}

func translateErr(err error) error {
	if constraint, ok := db.UniqueViolation(err); ok && constraint == nameConstraint {
		return shared.Conflict(shared.MsgRoleNameTaken)
	}
	return err
}
