package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/richxcame/ride-dispatch/pkg/logger"
	"github.com/richxcame/ride-dispatch/pkg/redis"
)

// Lock key families. Each guards one critical section in the dispatch flow.
const (
	createKeyPrefix = "lock:ride:create:"
	matchKeyPrefix  = "lock:ride:match:"
	acceptKeyPrefix = "lock:ride:accept:"
)

// ErrNotAcquired is returned when the lock is already held.
var ErrNotAcquired = fmt.Errorf("lock not acquired")

// releaseScript deletes the lock only while the caller still owns it, so a
// release that fires after TTL expiry cannot remove the next holder's lock.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) end return 0`

// Guard provides TTL-bounded mutual exclusion over Redis. Locks are
// best-effort fences; the database remains the source of truth and every
// guarded write is still conditional on persisted state.
type Guard struct {
	client    *redis.Client
	createTTL time.Duration
	matchTTL  time.Duration
	acceptTTL time.Duration
	newToken  func() string
}

// NewGuard builds a Guard with the given per-family TTLs.
func NewGuard(client *redis.Client, createTTL, matchTTL, acceptTTL time.Duration) *Guard {
	return &Guard{
		client:    client,
		createTTL: createTTL,
		matchTTL:  matchTTL,
		acceptTTL: acceptTTL,
		newToken:  uuid.NewString,
	}
}

// Release is returned by every acquire and frees the lock early. Safe to call
// after expiry; the delete is simply a no-op then.
type Release func()

// AcquireCreate prevents a rider from creating overlapping ride requests.
func (g *Guard) AcquireCreate(ctx context.Context, riderID uuid.UUID) (Release, error) {
	return g.acquire(ctx, createKeyPrefix+riderID.String(), g.createTTL)
}

// AcquireMatch serialises discovery rounds for one ride.
func (g *Guard) AcquireMatch(ctx context.Context, rideID uuid.UUID) (Release, error) {
	return g.acquire(ctx, matchKeyPrefix+rideID.String(), g.matchTTL)
}

// AcquireAccept serialises driver acceptance attempts for one ride.
func (g *Guard) AcquireAccept(ctx context.Context, rideID uuid.UUID) (Release, error) {
	return g.acquire(ctx, acceptKeyPrefix+rideID.String(), g.acceptTTL)
}

// CleanupStale removes a rider's create lock. Callers must first confirm
// against durable storage that the rider has no active ride; TTL expiry
// covers anything this misses.
func (g *Guard) CleanupStale(ctx context.Context, riderID uuid.UUID) error {
	return g.client.Delete(ctx, createKeyPrefix+riderID.String())
}

func (g *Guard) acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	token := g.newToken()
	ok, err := g.client.SetIfAbsent(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	release := func() {
		if err := g.client.Eval(context.Background(), releaseScript, []string{key}, token).Err(); err != nil {
			logger.Get().Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, nil
}
