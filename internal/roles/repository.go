package roles

import (
	"context"

	"github.com/jobready/authcore/internal/shared"
)

// Repository defines persistence operations for roles. Delete must refuse
// with a "role in use" conflict while any active assignment references the
// role, checking and deleting atomically. Update reads, applies and writes
// the row under a lock so concurrent updates of one role serialise.
type Repository interface {
	Create(ctx context.Context, role Role) (Role, error)
	GetByID(ctx context.Context, id int64) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	Update(ctx context.Context, id int64, apply func(*Role) error) (Role, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter, page shared.Page) ([]Role, int, error)
}
