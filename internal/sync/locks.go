package sync

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// accountLocks serializes passes per account within one process. Different
// accounts share no mutable state and proceed in parallel.
type accountLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *accountLocks) lock(accountID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	am, ok := l.m[accountID]
	if !ok {
		am = &sync.Mutex{}
		l.m[accountID] = am
	}
	l.mu.Unlock()

	am.Lock()
	return am.Unlock
}

// Lease is a cross-process per-account sync lock backed by redis SetNX.
// The TTL bounds how long a crashed holder can block an account.
type Lease struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLease(rdb *redis.Client, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lease{rdb: rdb, ttl: ttl}
}

// Acquire takes the lease for one account. Returns ok=false when another
// process holds it. Redis being down does not block syncing; the in-process
// mutex still serializes within this process.
func (l *Lease) Acquire(ctx context.Context, accountID string) (release func(), ok bool, err error) {
	key := "synclock:" + accountID
	set, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return func() {}, true, err
	}
	if !set {
		return nil, false, nil
	}
	return func() {
		l.rdb.Del(context.WithoutCancel(ctx), key)
	}, true, nil
}
