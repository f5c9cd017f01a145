// Package store wraps the shared Redis instance behind the narrow
// capability surface the worker needs: list push/pop, keys with TTL,
// hash increments and a TTL-bounded advisory lease.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrorKind classifies store failures.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindTimeout
	KindSerialization
)

// Error is the single error type surfaced by the store layer.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewSerializationError marks an encode/decode failure of a value bound
// for or read from the store.
func NewSerializationError(op string, err error) error {
	return &Error{Kind: KindSerialization, Op: op, Err: err}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransport
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Store is the worker's client to the shared data store. All methods are
// safe for concurrent use.
type Store struct {
	rdb *redis.Client
}

// New connects to the store at addr. The timeout bounds dialing and every
// individual read/write.
func New(addr string, db int, timeout time.Duration) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})}
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies the store is reachable. Bootstrap fails fast on error.
func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.rdb.Ping(ctx).Err())
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// ListPushHead pushes value at the head of the named list.
func (s *Store) ListPushHead(ctx context.Context, key, value string) error {
	return wrap("lpush", s.rdb.LPush(ctx, key, value).Err())
}

// ListPopTail pops the tail of the named list without blocking. An empty
// list is not an error; it reports ok=false.
func (s *Store) ListPopTail(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.RPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("rpop", err)
	}
	return value, true, nil
}

// ListPopTailBlocking pops the tail of the named list, waiting up to wait
// for an item to arrive. A timeout reports ok=false, not an error.
func (s *Store) ListPopTailBlocking(ctx context.Context, key string, wait time.Duration) (string, bool, error) {
	values, err := s.rdb.BRPop(ctx, wait, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("brpop", err)
	}
	return values[1], true, nil
}

// ListLength returns the current length of the named list.
func (s *Store) ListLength(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.LLen(ctx, key).Result()
	if err != nil {
		return 0, wrap("llen", err)
	}
	return n, nil
}

// GetString reads a plain key. A missing key reports ok=false.
func (s *Store) GetString(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("get", err)
	}
	return value, true, nil
}

// SetStringWithTTL writes a plain key that expires after ttl.
func (s *Store) SetStringWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrap("set", s.rdb.Set(ctx, key, value, ttl).Err())
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return wrap("del", s.rdb.Del(ctx, key).Err())
}

// HashIncrementInt atomically adds delta to an integer hash field.
func (s *Store) HashIncrementInt(ctx context.Context, key, field string, delta int64) error {
	return wrap("hincrby", s.rdb.HIncrBy(ctx, key, field, delta).Err())
}

// HashIncrementFloat atomically adds delta to a float hash field.
func (s *Store) HashIncrementFloat(ctx context.Context, key, field string, delta float64) error {
	return wrap("hincrbyfloat", s.rdb.HIncrByFloat(ctx, key, field, delta).Err())
}

// HashGetAll returns every field of the named hash.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("hgetall", err)
	}
	return fields, nil
}
