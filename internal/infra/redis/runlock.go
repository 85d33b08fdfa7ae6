package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

const (
	defaultLockTTL = 5 * time.Minute
	lockKeyPrefix  = "survey-engine:run:"

	refreshRetries    = 2
	refreshRetryDelay = 2 * time.Second
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var refreshScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RunLock keeps two delivery runs for the same mechanism from writing
// attempts at the same time.
type RunLock struct {
	client   *goredis.Client
	ttl      time.Duration
	newToken func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewRunLock(client *goredis.Client, ttl time.Duration) (*RunLock, error) {
	return newRunLock(client, ttl, uuid.NewString, sleepWithContext)
}

func newRunLock(
	client *goredis.Client,
	ttl time.Duration,
	tokenFn func() string,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if tokenFn == nil {
		tokenFn = uuid.NewString
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &RunLock{
		client:   client,
		ttl:      ttl,
		newToken: tokenFn,
		sleep:    sleepFn,
	}, nil
}

// Lease is a held run lock.
type Lease struct {
	lock  *RunLock
	key   string
	token string
}

// Acquire takes the lock for mechanism or fails with domain.ErrRunLocked.
func (l *RunLock) Acquire(ctx context.Context, mechanism domain.Mechanism) (*Lease, error) {
	name := strings.ToLower(strings.TrimSpace(mechanism.String()))
	if name == "" {
		return nil, fmt.Errorf("mechanism is required")
	}

	key := lockKeyPrefix + name
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRunLocked, name)
	}

	return &Lease{lock: l, key: key, token: token}, nil
}

// Refresh extends the lease. It fails with domain.ErrRunLocked once the lease
// has expired and been taken by someone else.
func (s *Lease) Refresh(ctx context.Context) error {
	result, err := refreshScript.Run(ctx, s.lock.client, []string{s.key}, s.token, s.lock.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to refresh run lock: %w", err)
	}
	if result == 0 {
		return fmt.Errorf("%w: lease on %s lost", domain.ErrRunLocked, s.key)
	}
	return nil
}

// KeepAlive refreshes the lease at a third of its TTL until ctx is done. It
// returns an error once the lease is lost or Redis stays unreachable.
func (s *Lease) KeepAlive(ctx context.Context) error {
	interval := s.lock.ttl / 3
	for {
		if err := s.lock.sleep(ctx, interval); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := s.refreshWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// refreshWithRetry retries refreshes that failed to reach Redis. A lease that
// is no longer ours is reported at once.
func (s *Lease) refreshWithRetry(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= refreshRetries; attempt++ {
		if attempt > 0 {
			if sleepErr := s.lock.sleep(ctx, refreshRetryDelay); sleepErr != nil {
				return sleepErr
			}
		}

		err = s.Refresh(ctx)
		if err == nil || errors.Is(err, domain.ErrRunLocked) {
			return err
		}
	}
	return err
}

// Release drops the lease if it is still ours.
func (s *Lease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, s.lock.client, []string{s.key}, s.token).Int(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
