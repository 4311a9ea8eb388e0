package users

import (
	"context"

	"github.com/jobready/authcore/internal/shared"
)

// Repository defines persistence operations for accounts. Implementations
// report a duplicate email as a conflict and cascade assignment rows on
// Delete.
type Repository interface {
	Create(ctx context.Context, account Account) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Update(ctx context.Context, account Account) (Account, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter, page shared.Page) ([]Account, int, error)
}
