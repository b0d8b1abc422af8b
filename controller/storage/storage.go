package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Store is the minimal key/value surface the rest of the controller needs.
// Values are JSON-encoded; buckets must be created before use.
type Store interface {
	CreateBucket(bucket string) error
	Get(bucket, id string, i interface{}) error
	Put(bucket, id string, i interface{}) error
	Create(bucket string, fn func(id string) interface{}) error
	List(bucket string, fn func(id string, v []byte) error) error
	Delete(bucket, id string) error
	Close() error
}

type boltStore struct {
	db *bbolt.DB
}

// NewStore opens (or creates) the bolt database at path.
func NewStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) CreateBucket(bucket string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
}

func (s *boltStore) Get(bucket, id string, i interface{}) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		v := b.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%s/%s not found", bucket, id)
		}
		return json.Unmarshal(v, i)
	})
}

func (s *boltStore) Put(bucket, id string, i interface{}) error {
	data, err := json.Marshal(i)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Put([]byte(id), data)
	})
}

// Create inserts a new record under a fresh sequence-derived id. fn receives
// the id so the record can embed it before being serialized.
func (s *boltStore) Create(bucket string, fn func(id string) interface{}) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id := fmt.Sprintf("%d", seq)
		data, err := json.Marshal(fn(id))
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *boltStore) List(bucket string, fn func(id string, v []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

func (s *boltStore) Delete(bucket, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Delete([]byte(id))
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
