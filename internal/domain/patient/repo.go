package patient

import "context"

// Repository persists patients. List and SearchByName order by ID and
// return the requested window plus the total number of matches.
type Repository interface {
	// Save inserts p when p.ID is zero and assigns the new ID, otherwise
	// updates the stored record. Updating a missing ID is ErrNotFound.
	Save(ctx context.Context, p *Patient) error
	FindByID(ctx context.Context, id int64) (*Patient, error)
	// DeleteByID removes the record. Unknown IDs are ignored.
	DeleteByID(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	// SearchByName matches patients whose name contains keyword,
	// case-sensitively.
	SearchByName(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error)
}
