package account

import "context"

// UserRepository persists users together with their role set.
type UserRepository interface {
	// Save inserts or updates u by ID, assigning a new ID when empty. The
	// stored role set is replaced by u.Roles.
	Save(ctx context.Context, u *AppUser) error
	FindByID(ctx context.Context, id string) (*AppUser, error)
	FindByUsername(ctx context.Context, username string) (*AppUser, error)
	DeleteByID(ctx context.Context, id string) error
	List(ctx context.Context, limit, offset int) ([]*AppUser, int, error)
}

// RoleRepository persists roles. Roles are never updated once saved.
type RoleRepository interface {
	Save(ctx context.Context, r *AppRole) error
	FindByID(ctx context.Context, name string) (*AppRole, error)
	// DeleteByID removes the role and drops it from every user.
	DeleteByID(ctx context.Context, name string) error
	List(ctx context.Context, limit, offset int) ([]*AppRole, int, error)
}
