package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jobready/authcore/internal/platform/db"
)

// PGRepository reads audit_logs from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// TimelineWindow returns up to limit rows after skipping offset.
func (r *PGRepository) TimelineWindow(ctx context.Context, q Query, offset, limit int) ([]TimelineRow, error) {
	where, args := buildWhere(q)
	args = append(args, limit, offset)
	sql := `SELECT occurred_at, actor_id::text, action, entity, entity_id, meta FROM audit_logs` + where +
		` ORDER BY occurred_at DESC, id DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	return r.query(ctx, sql, args...)
}

// TimelineAll returns every matching row.
func (r *PGRepository) TimelineAll(ctx context.Context, q Query) ([]TimelineRow, error) {
	where, args := buildWhere(q)
	sql := `SELECT occurred_at, actor_id::text, action, entity, entity_id, meta FROM audit_logs` + where +
		` ORDER BY occurred_at DESC, id DESC`
	return r.query(ctx, sql, args...)
}

func (r *PGRepository) query(ctx context.Context, sql string, args ...any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			at    time.Time
			actor pgtype.Text
			meta  []byte
			tr    TimelineRow
		)
		if err := row.Scan(&at, &actor, &tr.Action, &tr.Entity, &tr.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		tr.At = at.UTC()
		if actor.Valid {
			tr.Actor = actor.String
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &tr.Meta); err != nil {
				return TimelineRow{}, err
			}
		}
		return tr, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func buildWhere(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if !q.From.IsZero() {
		add("occurred_at >= ?", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at < ?", q.To)
	}
	if q.Actor != "" {
		if uid, ok := db.UUIDArg(q.Actor); ok {
			add("actor_id = ?::uuid", uid)
		} else {
			conds = append(conds, "FALSE")
		}
	}
	if q.Entity != "" {
		add("entity = ?", q.Entity)
	}
	if q.Action != "" {
		add("action = ?", q.Action)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
