package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease key only while it still carries the
// owner's token, so a holder whose lease expired and was taken over by
// another instance can never release the new holder's lease.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Lease is a named advisory lock held in the shared store. It expires on
// its own after the acquisition TTL if never released.
type Lease struct {
	store *Store
	key   string
	token string
}

// TryAcquireLease attempts to take the named lease for ttl. It returns
// nil without error when another instance already holds it.
func (s *Store) TryAcquireLease(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	acquired, err := s.rdb.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, wrap("setnx", err)
	}
	if !acquired {
		return nil, nil
	}
	return &Lease{store: s, key: name, token: token}, nil
}

// Release gives the lease back. Releasing a lease that already expired is
// a no-op.
func (l *Lease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.store.rdb, []string{l.key}, l.token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return wrap("lease release", err)
	}
	return nil
}
