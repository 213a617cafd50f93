package routing

import (
	"context"
	"sync"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/natsclient"
)

// EntityStore is the durable persistence boundary: one record per key,
// source of truth across restarts. Get returns errors.ErrKeyNotFound
// for absent keys; Delete of an absent key is a no-op.
type EntityStore interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, key string) error
}

// KVEntityStore persists through a JetStream KV bucket
type KVEntityStore struct {
	kv *natsclient.KVStore
}

// NewKVEntityStore wraps a KV bucket as an entity store
func NewKVEntityStore(kv *natsclient.KVStore) *KVEntityStore {
	return &KVEntityStore{kv: kv}
}

// Put stores a record
func (s *KVEntityStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.kv.Put(ctx, key, value); err != nil {
		return errors.WrapTransient(err, "KVEntityStore", "Put", "store record "+key)
	}
	return nil
}

// Get retrieves a record
func (s *KVEntityStore) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := s.kv.Get(ctx, key)
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, errors.ErrKeyNotFound
		}
		return nil, errors.WrapTransient(err, "KVEntityStore", "Get", "read record "+key)
	}
	return entry.Value, nil
}

// List returns all record keys
func (s *KVEntityStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVEntityStore", "List", "list record keys")
	}
	return keys, nil
}

// Delete removes a record. Absent keys are a no-op.
func (s *KVEntityStore) Delete(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return errors.WrapTransient(err, "KVEntityStore", "Delete", "delete record "+key)
	}
	return nil
}

// MemoryEntityStore is an in-memory entity store for embedding and
// tests. Values are copied on write and read.
type MemoryEntityStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryEntityStore creates an empty in-memory store
func NewMemoryEntityStore() *MemoryEntityStore {
	return &MemoryEntityStore{records: make(map[string][]byte)}
}

// Put stores a record copy
func (s *MemoryEntityStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(value))
	copy(copied, value)
	s.records[key] = copied
	return nil
}

// Get retrieves a record copy
func (s *MemoryEntityStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.records[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

// List returns all record keys
func (s *MemoryEntityStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	return keys, nil
}

// Delete removes a record
func (s *MemoryEntityStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
