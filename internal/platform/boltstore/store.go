// Package boltstore is the embedded storage backend: a single bbolt file with
// one bucket per record type and JSON-encoded values. Repositories run their
// reads and writes through View/Update so that a unit of work opened by InTx
// is joined transparently.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"go.etcd.io/bbolt"
)

var (
	BucketPatients    = []byte("patients")
	BucketUsers       = []byte("users")
	BucketUsersByName = []byte("users_by_username")
	BucketRoles       = []byte("roles")
	errReadOnlyTx     = errors.New("write requested inside a read-only transaction")
	errMissingBucket  = errors.New("bucket not found")
	allBuckets        = [][]byte{BucketPatients, BucketUsers, BucketUsersByName, BucketRoles}
)

type contextKey string

const txKey contextKey = "bolt_tx"

type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens (or creates) the database file and ensures every bucket exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Path() string {
	return s.path
}

// TxFromContext returns the transaction bound by InTx, or nil.
func TxFromContext(ctx context.Context) *bbolt.Tx {
	tx, _ := ctx.Value(txKey).(*bbolt.Tx)
	return tx
}

// InTx runs fn inside one read-write transaction. Nested calls join the outer one.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

// View runs fn in the context transaction if present, else in a new read-only one.
func (s *Store) View(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(tx)
	}
	return s.db.View(fn)
}

// Update runs fn in the context transaction if present, else in a new read-write one.
func (s *Store) Update(ctx context.Context, fn func(tx *bbolt.Tx) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		if !tx.Writable() {
			return errReadOnlyTx
		}
		return fn(tx)
	}
	return s.db.Update(fn)
}

// Bucket returns the named bucket or an error when the file was not initialised by Open.
func Bucket(tx *bbolt.Tx, name []byte) (*bbolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%w: %s", errMissingBucket, name)
	}
	return b, nil
}

// Get decodes the value stored under key. found is false when the key is absent.
func Get[T any](tx *bbolt.Tx, bucket, key []byte) (value *T, found bool, err error) {
	b, err := Bucket(tx, bucket)
	if err != nil {
		return nil, false, err
	}
	raw := b.Get(key)
	if raw == nil {
		return nil, false, nil
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("decode %s/%s: %w", bucket, key, err)
	}
	return &out, true, nil
}

// Put JSON-encodes value under key.
func Put[T any](tx *bbolt.Tx, bucket, key []byte, value T) error {
	b, err := Bucket(tx, bucket)
	if err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", bucket, key, err)
	}
	return b.Put(key, data)
}

// ForEach decodes every value in key order and hands it to fn.
func ForEach[T any](tx *bbolt.Tx, bucket []byte, fn func(key []byte, value *T) error) error {
	b, err := Bucket(tx, bucket)
	if err != nil {
		return err
	}
	return b.ForEach(func(k, v []byte) error {
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
		}
		return fn(k, &out)
	})
}

// Itob encodes id big-endian so that bucket order matches numeric order.
func Itob(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

// HealthHandler reports whether the bolt file is readable.
func HealthHandler(s *Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var keys int
		err := s.db.View(func(tx *bbolt.Tx) error {
			for _, name := range allBuckets {
				b, err := Bucket(tx, name)
				if err != nil {
					return err
				}
				keys += b.Stats().KeyN
			}
			return nil
		})
		if err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"store":  "bolt",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"store":  "bolt",
			"path":   s.path,
			"keys":   keys,
		})
	}
}
