package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// repoLocks serializes reconciliation passes per repository. Passes for
// different repositories run in parallel; two passes over the same
// repository never overlap, protecting the write-once terminal fields.
type repoLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newRepoLocks() *repoLocks {
	return &repoLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// Lock acquires the per-repository mutex and returns its release func.
func (r *repoLocks) Lock(repoID uuid.UUID) func() {
	r.mu.Lock()
	m, ok := r.locks[repoID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[repoID] = m
	}
	r.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// distributedLock extends serialization across multiple control-plane
// instances via a Redis SETNX lease. Single-instance deployments run
// without Redis; the in-process mutex alone then provides the guarantee.
type distributedLock struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func newDistributedLock(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *distributedLock {
	return &distributedLock{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "reconcile_lock").Logger(),
	}
}

// TryAcquire attempts to take the lease for a repository. It returns a
// release func and true on success, or false when another instance holds
// the lease; the caller then skips this repository for the cycle.
func (d *distributedLock) TryAcquire(ctx context.Context, repoID uuid.UUID) (func(), bool) {
	key := "backhaul:reconcile:" + repoID.String()
	ok, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		d.logger.Warn().Err(err).Str("repository", repoID.String()).Msg("lock acquisition failed, proceeding with local lock only")
		return func() {}, true
	}
	if !ok {
		return nil, false
	}
	return func() {
		if err := d.client.Del(context.Background(), key).Err(); err != nil {
			d.logger.Warn().Err(err).Str("repository", repoID.String()).Msg("lock release failed, lease will expire")
		}
	}, true
}
