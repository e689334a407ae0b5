// Package redisbackend implements memory.Backend over Redis, for the
// distributed deployment mode spec.md's Design Notes allow alongside the
// embedded SQLite backend. It is grounded on the teacher's
// core/redis_client.go (DB isolation, namespacing, connection lifecycle) and
// core/redis_registry.go's use of the same go-redis/v8 client for durable
// state.
package redisbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/validation"
)

// Backend stores memory entries as Redis hash fields under a single
// namespaced key, so Snapshot/Restore and transaction staging can operate on
// the whole data set without a table scan.
type Backend struct {
	client    *redis.Client
	namespace string
	hashKey   string
}

// Open parses redisURL, selects db (0-15, matching the teacher's DB
// isolation scheme), and verifies connectivity with a bounded Ping.
func Open(ctx context.Context, redisURL string, namespace string, db int) (*Backend, error) {
	if err := validation.ValidateNamespace(namespace); err != nil {
		return nil, &memory.ConnectionFailedError{Backend: "redis", Reason: err.Error()}
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, &memory.ConnectionFailedError{Backend: "redis", Reason: "invalid redis URL: " + err.Error()}
	}
	if db >= 0 && db <= 15 {
		opt.DB = db
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, &memory.ConnectionFailedError{Backend: "redis", Reason: "failed to connect: " + err.Error()}
	}

	return &Backend{
		client:    client,
		namespace: namespace,
		hashKey:   fmt.Sprintf("agentrt:%s:memory", namespace),
	}, nil
}

func (b *Backend) Load(ctx context.Context, key validation.MemoryKey) (string, bool, error) {
	v, err := b.client.HGet(ctx, b.hashKey, key.String()).Result()
	switch err {
	case nil:
		return v, true, nil
	case redis.Nil:
		return "", false, nil
	default:
		return "", false, &memory.LoadFailedError{Key: key, Reason: err.Error()}
	}
}

func (b *Backend) LoadMany(ctx context.Context, keys []validation.MemoryKey) ([]memory.LoadResult, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k.String()
	}

	raw, err := b.client.HMGet(ctx, b.hashKey, fields...).Result()
	if err != nil {
		return nil, &memory.LoadFailedError{Key: keys[0], Reason: err.Error()}
	}

	results := make([]memory.LoadResult, len(keys))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		results[i] = memory.LoadResult{Value: s, Found: true}
	}
	return results, nil
}

func (b *Backend) Store(ctx context.Context, update memory.Update) error {
	if err := b.client.HSet(ctx, b.hashKey, update.Key.String(), update.Value).Err(); err != nil {
		return &memory.StoreFailedError{Key: update.Key, Backend: "redis", Kind: memory.FailureConnectivity, Reason: err.Error()}
	}
	return nil
}

func (b *Backend) StoreMany(ctx context.Context, updates []memory.Update) error {
	if len(updates) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(updates))
	for _, u := range updates {
		fields[u.Key.String()] = u.Value
	}
	if err := b.client.HSet(ctx, b.hashKey, fields).Err(); err != nil {
		return &memory.StoreFailedError{Key: updates[0].Key, Backend: "redis", Kind: memory.FailureConnectivity, Reason: err.Error()}
	}
	return nil
}

// stagingWriter buffers writes in memory and reads through to Redis,
// matching read-your-own-writes semantics, so Transaction can discard the
// buffer entirely on failure instead of relying on Redis transactions that
// don't compose with an arbitrary Go closure.
type stagingWriter struct {
	mu      sync.RWMutex
	backend *Backend
	pending map[string]string
}

func (s *stagingWriter) Load(ctx context.Context, key validation.MemoryKey) (string, bool, error) {
	s.mu.RLock()
	v, ok := s.pending[key.String()]
	s.mu.RUnlock()
	if ok {
		return v, true, nil
	}
	return s.backend.Load(ctx, key)
}

func (s *stagingWriter) LoadMany(ctx context.Context, keys []validation.MemoryKey) ([]memory.LoadResult, error) {
	results := make([]memory.LoadResult, len(keys))
	for i, k := range keys {
		v, found, err := s.Load(ctx, k)
		if err != nil {
			return nil, err
		}
		results[i] = memory.LoadResult{Value: v, Found: found}
	}
	return results, nil
}

func (s *stagingWriter) Store(ctx context.Context, update memory.Update) error {
	s.mu.Lock()
	s.pending[update.Key.String()] = update.Value
	s.mu.Unlock()
	return nil
}

func (s *stagingWriter) StoreMany(ctx context.Context, updates []memory.Update) error {
	s.mu.Lock()
	for _, u := range updates {
		s.pending[u.Key.String()] = u.Value
	}
	s.mu.Unlock()
	return nil
}

// Transaction runs fn against a staging writer and flushes its buffered
// writes in a single pipelined HSET only if fn succeeds.
func (b *Backend) Transaction(ctx context.Context, fn memory.TxFunc) error {
	staging := &stagingWriter{backend: b, pending: make(map[string]string)}

	if err := fn(ctx, staging); err != nil {
		return err
	}

	staging.mu.RLock()
	updates := make([]memory.Update, 0, len(staging.pending))
	for k, v := range staging.pending {
		var mk validation.MemoryKey
		var err error
		if ns, key, namespaced := strings.Cut(k, ":"); namespaced {
			mk, err = validation.NewNamespacedMemoryKey(ns, key)
		} else {
			mk, err = validation.NewMemoryKey(k)
		}
		if err != nil {
			staging.mu.RUnlock()
			return &memory.TransactionFailedError{Reason: err.Error()}
		}
		updates = append(updates, memory.Update{Key: mk, Value: v})
	}
	staging.mu.RUnlock()

	if err := b.StoreMany(ctx, updates); err != nil {
		return &memory.TransactionFailedError{Reason: "failed to commit buffered writes: " + err.Error()}
	}
	return nil
}

func (b *Backend) Snapshot(ctx context.Context) ([]byte, error) {
	doc, err := b.client.HGetAll(ctx, b.hashKey).Result()
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	blob, err := json.Marshal(doc)
	if err != nil {
		return nil, &memory.SnapshotFailedError{Reason: err.Error()}
	}
	return blob, nil
}

func (b *Backend) Restore(ctx context.Context, blob []byte) error {
	var doc map[string]string
	if err := json.Unmarshal(blob, &doc); err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}

	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.hashKey)
	if len(doc) > 0 {
		fields := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			fields[k] = v
		}
		pipe.HSet(ctx, b.hashKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &memory.RestoreFailedError{Reason: err.Error()}
	}
	return nil
}

// Close closes the underlying Redis client.
func (b *Backend) Close() error { return b.client.Close() }

var _ memory.Backend = (*Backend)(nil)
