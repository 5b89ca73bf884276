package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/boltstore"
)

// -- User Repository --

// userRepoBolt keeps users keyed by ID plus a username -> ID index, which
// also gives List its username order.
type userRepoBolt struct {
	store *boltstore.Store
}

func NewUserRepoBolt(store *boltstore.Store) UserRepository {
	return &userRepoBolt{store: store}
}

func (r *userRepoBolt) Save(ctx context.Context, u *AppUser) error {
	rec := *u
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := r.store.Update(ctx, func(tx *bbolt.Tx) error {
		index, err := boltstore.Bucket(tx, boltstore.BucketUsersByName)
		if err != nil {
			return err
		}
		if owner := index.Get([]byte(rec.Username)); owner != nil && string(owner) != rec.ID {
			return fmt.Errorf("username %q: %w", rec.Username, apperr.ErrConflict)
		}
		for _, role := range rec.Roles {
			if _, found, err := boltstore.Get[AppRole](tx, boltstore.BucketRoles, []byte(role)); err != nil {
				return err
			} else if !found {
				return fmt.Errorf("role %q: %w", role, apperr.ErrNotFound)
			}
		}

		existing, found, err := boltstore.Get[AppUser](tx, boltstore.BucketUsers, []byte(rec.ID))
		if err != nil {
			return err
		}
		if found {
			rec.CreatedAt = existing.CreatedAt
			if existing.Username != rec.Username {
				if err := index.Delete([]byte(existing.Username)); err != nil {
					return err
				}
			}
		} else {
			rec.CreatedAt = time.Now().UTC()
		}

		if err := index.Put([]byte(rec.Username), []byte(rec.ID)); err != nil {
			return err
		}
		return boltstore.Put(tx, boltstore.BucketUsers, []byte(rec.ID), rec)
	})
	if err != nil {
		return err
	}
	*u = rec
	return nil
}

func (r *userRepoBolt) FindByID(ctx context.Context, id string) (*AppUser, error) {
	var out *AppUser
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		u, found, err := boltstore.Get[AppUser](tx, boltstore.BucketUsers, []byte(id))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		out = u
		return nil
	})
	return out, err
}

func (r *userRepoBolt) FindByUsername(ctx context.Context, username string) (*AppUser, error) {
	var out *AppUser
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		index, err := boltstore.Bucket(tx, boltstore.BucketUsersByName)
		if err != nil {
			return err
		}
		id := index.Get([]byte(username))
		if id == nil {
			return fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
		}
		u, found, err := boltstore.Get[AppUser](tx, boltstore.BucketUsers, id)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("user %q: %w", username, apperr.ErrNotFound)
		}
		out = u
		return nil
	})
	return out, err
}

func (r *userRepoBolt) DeleteByID(ctx context.Context, id string) error {
	return r.store.Update(ctx, func(tx *bbolt.Tx) error {
		u, found, err := boltstore.Get[AppUser](tx, boltstore.BucketUsers, []byte(id))
		if err != nil || !found {
			return err
		}
		index, err := boltstore.Bucket(tx, boltstore.BucketUsersByName)
		if err != nil {
			return err
		}
		if err := index.Delete([]byte(u.Username)); err != nil {
			return err
		}
		users, err := boltstore.Bucket(tx, boltstore.BucketUsers)
		if err != nil {
			return err
		}
		return users.Delete([]byte(id))
	})
}

func (r *userRepoBolt) List(ctx context.Context, limit, offset int) ([]*AppUser, int, error) {
	var (
		users []*AppUser
		total int
	)
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		index, err := boltstore.Bucket(tx, boltstore.BucketUsersByName)
		if err != nil {
			return err
		}
		return index.ForEach(func(_, id []byte) error {
			pos := total
			total++
			if pos < offset || len(users) >= limit {
				return nil
			}
			u, found, err := boltstore.Get[AppUser](tx, boltstore.BucketUsers, id)
			if err != nil {
				return err
			}
			if found {
				users = append(users, u)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// -- Role Repository --

type roleRepoBolt struct {
	store *boltstore.Store
}

func NewRoleRepoBolt(store *boltstore.Store) RoleRepository {
	return &roleRepoBolt{store: store}
}

func (r *roleRepoBolt) Save(ctx context.Context, role *AppRole) error {
	return r.store.Update(ctx, func(tx *bbolt.Tx) error {
		return boltstore.Put(tx, boltstore.BucketRoles, []byte(role.Name), role)
	})
}

func (r *roleRepoBolt) FindByID(ctx context.Context, name string) (*AppRole, error) {
	var out *AppRole
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		role, found, err := boltstore.Get[AppRole](tx, boltstore.BucketRoles, []byte(name))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("role %q: %w", name, apperr.ErrNotFound)
		}
		out = role
		return nil
	})
	return out, err
}

func (r *roleRepoBolt) DeleteByID(ctx context.Context, name string) error {
	return r.store.Update(ctx, func(tx *bbolt.Tx) error {
		roles, err := boltstore.Bucket(tx, boltstore.BucketRoles)
		if err != nil {
			return err
		}
		if err := roles.Delete([]byte(name)); err != nil {
			return err
		}

		var holders []*AppUser
		err = boltstore.ForEach(tx, boltstore.BucketUsers, func(_ []byte, u *AppUser) error {
			if u.revoke(name) {
				holders = append(holders, u)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, u := range holders {
			if err := boltstore.Put(tx, boltstore.BucketUsers, []byte(u.ID), u); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *roleRepoBolt) List(ctx context.Context, limit, offset int) ([]*AppRole, int, error) {
	var (
		roles []*AppRole
		total int
	)
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		return boltstore.ForEach(tx, boltstore.BucketRoles, func(_ []byte, role *AppRole) error {
			if total >= offset && len(roles) < limit {
				roles = append(roles, role)
			}
			total++
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}
