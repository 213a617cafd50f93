package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/eventrouter/errors"
	"github.com/c360/eventrouter/pkg/retry"
)

// KV error sentinels
var (
	ErrKVKeyNotFound   = stderrors.New("key not found")
	ErrKVKeyExists     = stderrors.New("key already exists")
	ErrKVWrongRevision = stderrors.New("wrong revision")
)

// IsKVNotFoundError reports whether err indicates a missing key
func IsKVNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, ErrKVKeyNotFound) ||
		stderrors.Is(err, jetstream.ErrKeyNotFound) ||
		strings.Contains(err.Error(), "key not found")
}

// IsKVConflictError reports whether err indicates a CAS conflict
func IsKVConflictError(err error) bool {
	if err == nil {
		return false
	}
	return stderrors.Is(err, ErrKVWrongRevision) ||
		stderrors.Is(err, jetstream.ErrKeyExists) ||
		strings.Contains(err.Error(), "wrong last sequence")
}

// KVEntry is a value with its revision, used for compare-and-swap updates
type KVEntry struct {
	Key      string
	Value    []byte
	Revision uint64
	Created  time.Time
}

// KVStore wraps a JetStream key-value bucket with typed errors and
// retrying compare-and-swap updates.
type KVStore struct {
	bucket jetstream.KeyValue
	name   string
	logger Logger
}

// NewKVStore creates a KVStore over an existing bucket
func NewKVStore(bucket jetstream.KeyValue, name string, logger Logger) *KVStore {
	if logger == nil {
		logger = &defaultLogger{}
	}
	return &KVStore{bucket: bucket, name: name, logger: logger}
}

// Name returns the bucket name
func (s *KVStore) Name() string {
	return s.name
}

// Get retrieves the value for a key
func (s *KVStore) Get(ctx context.Context, key string) (*KVEntry, error) {
	entry, err := s.bucket.Get(ctx, key)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s/%s", ErrKVKeyNotFound, s.name, key)
		}
		return nil, errors.WrapTransient(err, "KVStore", "Get",
			fmt.Sprintf("get key %s from bucket %s", key, s.name))
	}
	return &KVEntry{
		Key:      entry.Key(),
		Value:    entry.Value(),
		Revision: entry.Revision(),
		Created:  entry.Created(),
	}, nil
}

// Put stores a value unconditionally and returns the new revision
func (s *KVStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.bucket.Put(ctx, key, value)
	if err != nil {
		return 0, errors.WrapTransient(err, "KVStore", "Put",
			fmt.Sprintf("put key %s in bucket %s", key, s.name))
	}
	return rev, nil
}

// Create stores a value only if the key does not exist
func (s *KVStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := s.bucket.Create(ctx, key, value)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrKeyExists) {
			return 0, fmt.Errorf("%w: %s/%s", ErrKVKeyExists, s.name, key)
		}
		return 0, errors.WrapTransient(err, "KVStore", "Create",
			fmt.Sprintf("create key %s in bucket %s", key, s.name))
	}
	return rev, nil
}

// Update stores a value only if the current revision matches
func (s *KVStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := s.bucket.Update(ctx, key, value, revision)
	if err != nil {
		if strings.Contains(err.Error(), "wrong last sequence") {
			return 0, fmt.Errorf("%w: %s/%s at revision %d", ErrKVWrongRevision, s.name, key, revision)
		}
		return 0, errors.WrapTransient(err, "KVStore", "Update",
			fmt.Sprintf("update key %s in bucket %s", key, s.name))
	}
	return rev, nil
}

// UpdateWithRetry applies a read-modify-write loop with CAS and bounded
// retries. The modify function receives the current value (nil when the
// key is absent) and returns the new value.
func (s *KVStore) UpdateWithRetry(ctx context.Context, key string, modify func(current []byte) ([]byte, error)) error {
	cfg := retry.Quick()

	return retry.Do(ctx, cfg, func() error {
		entry, err := s.Get(ctx, key)
		var current []byte
		var revision uint64

		switch {
		case err == nil:
			current = entry.Value
			revision = entry.Revision
		case IsKVNotFoundError(err):
			// key absent, create below
		default:
			return err
		}

		next, err := modify(current)
		if err != nil {
			return retry.NonRetryable(err)
		}

		if revision == 0 {
			_, err = s.Create(ctx, key, next)
			if stderrors.Is(err, ErrKVKeyExists) {
				return err // lost race, retry with fresh read
			}
			return err
		}

		_, err = s.Update(ctx, key, next, revision)
		if IsKVConflictError(err) {
			return err // lost race, retry with fresh read
		}
		if err != nil {
			return retry.NonRetryable(err)
		}
		return nil
	})
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *KVStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && !stderrors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.WrapTransient(err, "KVStore", "Delete",
			fmt.Sprintf("delete key %s from bucket %s", key, s.name))
	}
	return nil
}

// Keys lists all keys in the bucket. An empty bucket returns an empty
// slice, not an error.
func (s *KVStore) Keys(ctx context.Context) ([]string, error) {
	lister, err := s.bucket.ListKeys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "Keys",
			fmt.Sprintf("list keys in bucket %s", s.name))
	}

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}
	return keys, nil
}

// Watch observes changes to keys matching the filter. The returned
// channel closes when ctx is cancelled.
func (s *KVStore) Watch(ctx context.Context, filter string) (<-chan *KVEntry, error) {
	watcher, err := s.bucket.Watch(ctx, filter)
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "Watch",
			fmt.Sprintf("watch %s in bucket %s", filter, s.name))
	}

	out := make(chan *KVEntry, 16)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				if entry == nil {
					continue // end of initial replay
				}
				if entry.Operation() != jetstream.KeyValuePut {
					continue
				}
				select {
				case out <- &KVEntry{
					Key:      entry.Key(),
					Value:    entry.Value(),
					Revision: entry.Revision(),
					Created:  entry.Created(),
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
