package audit

import (
	"context"
	"sort"

	"github.com/jobready/authcore/internal/shared"
)

// MemoryRepository serves the timeline from an in-memory audit log.
type MemoryRepository struct {
	log *shared.MemoryAuditLog
}

// NewMemoryRepository wraps log.
func NewMemoryRepository(log *shared.MemoryAuditLog) *MemoryRepository {
	return &MemoryRepository{log: log}
}

var _ Repository = (*MemoryRepository)(nil)

// TimelineWindow returns up to limit rows after skipping offset.
func (r *MemoryRepository) TimelineWindow(ctx context.Context, q Query, offset, limit int) ([]TimelineRow, error) {
	rows, err := r.TimelineAll(ctx, q)
	if err != nil {
		return nil, err
	}
	if offset >= len(rows) {
		return []TimelineRow{}, nil
	}
	rows = rows[offset:]
	if limit >= 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// TimelineAll returns every matching row, newest first.
func (r *MemoryRepository) TimelineAll(_ context.Context, q Query) ([]TimelineRow, error) {
	entries := r.log.Entries()
	out := make([]TimelineRow, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		row := TimelineRow{At: e.At.UTC(), Actor: e.ActorID, Action: e.Action, Entity: e.Entity, EntityID: e.EntityID, Meta: e.Meta}
		if q.Match(row) {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}
