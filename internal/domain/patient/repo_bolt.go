package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/boltstore"
)

type patientRepoBolt struct {
	store *boltstore.Store
	now   func() time.Time
}

func NewRepoBolt(store *boltstore.Store) Repository {
	return &patientRepoBolt{store: store, now: time.Now}
}

func (r *patientRepoBolt) Save(ctx context.Context, p *Patient) error {
	rec := *p
	err := r.store.Update(ctx, func(tx *bbolt.Tx) error {
		b, err := boltstore.Bucket(tx, boltstore.BucketPatients)
		if err != nil {
			return err
		}
		now := r.now().UTC()
		if rec.ID == 0 {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			rec.ID = int64(seq)
			rec.CreatedAt = now
		} else {
			existing, found, err := boltstore.Get[Patient](tx, boltstore.BucketPatients, boltstore.Itob(uint64(rec.ID)))
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("patient %d: %w", rec.ID, apperr.ErrNotFound)
			}
			rec.CreatedAt = existing.CreatedAt
		}
		rec.UpdatedAt = now
		return boltstore.Put(tx, boltstore.BucketPatients, boltstore.Itob(uint64(rec.ID)), rec)
	})
	if err != nil {
		return err
	}
	*p = rec
	return nil
}

func (r *patientRepoBolt) FindByID(ctx context.Context, id int64) (*Patient, error) {
	var out *Patient
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		p, found, err := boltstore.Get[Patient](tx, boltstore.BucketPatients, boltstore.Itob(uint64(id)))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("patient %d: %w", id, apperr.ErrNotFound)
		}
		out = p
		return nil
	})
	return out, err
}

func (r *patientRepoBolt) DeleteByID(ctx context.Context, id int64) error {
	if id <= 0 {
		return nil
	}
	return r.store.Update(ctx, func(tx *bbolt.Tx) error {
		b, err := boltstore.Bucket(tx, boltstore.BucketPatients)
		if err != nil {
			return err
		}
		return b.Delete(boltstore.Itob(uint64(id)))
	})
}

func (r *patientRepoBolt) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return r.SearchByName(ctx, "", limit, offset)
}

// SearchByName scans the bucket in key order, which is ID order.
func (r *patientRepoBolt) SearchByName(ctx context.Context, keyword string, limit, offset int) ([]*Patient, int, error) {
	var (
		items []*Patient
		total int
	)
	err := r.store.View(ctx, func(tx *bbolt.Tx) error {
		return boltstore.ForEach(tx, boltstore.BucketPatients, func(_ []byte, p *Patient) error {
			if !strings.Contains(p.Name, keyword) {
				return nil
			}
			if total >= offset && len(items) < limit {
				items = append(items, p)
			}
			total++
			return nil
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return items, total, nil
}
