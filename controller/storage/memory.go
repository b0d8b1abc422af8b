package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// memStore is an in-memory Store used by tests; it mirrors boltStore
// semantics (JSON round-trip, missing bucket/key errors).
type memStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	seq     map[string]uint64
}

// NewMemStore returns a Store backed by process memory.
func NewMemStore() Store {
	return &memStore{
		buckets: make(map[string]map[string][]byte),
		seq:     make(map[string]uint64),
	}
}

func (s *memStore) CreateBucket(bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *memStore) bucket(name string) (map[string][]byte, error) {
	b, ok := s.buckets[name]
	if !ok {
		return nil, fmt.Errorf("bucket %s not found", name)
	}
	return b, nil
}

func (s *memStore) Get(bucket, id string, i interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	v, ok := b[id]
	if !ok {
		return fmt.Errorf("%s/%s not found", bucket, id)
	}
	return json.Unmarshal(v, i)
}

func (s *memStore) Put(bucket, id string, i interface{}) error {
	data, err := json.Marshal(i)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	b[id] = data
	return nil
}

func (s *memStore) Create(bucket string, fn func(id string) interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	s.seq[bucket]++
	id := fmt.Sprintf("%d", s.seq[bucket])
	data, err := json.Marshal(fn(id))
	if err != nil {
		return err
	}
	b[id] = data
	return nil
}

func (s *memStore) List(bucket string, fn func(id string, v []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, b[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) Delete(bucket, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.bucket(bucket)
	if err != nil {
		return err
	}
	if _, ok := b[id]; !ok {
		return fmt.Errorf("%s/%s not found", bucket, id)
	}
	delete(b, id)
	return nil
}

func (s *memStore) Close() error { return nil }
