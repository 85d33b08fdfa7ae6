package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

func TestRunLockAcquireIsExclusivePerMechanism(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	lock, err := NewRunLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}

	lease, err := lock.Acquire(context.Background(), domain.MechanismEmail)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, err := lock.Acquire(context.Background(), domain.MechanismEmail); !errors.Is(err, domain.ErrRunLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrRunLocked", err)
	}

	other, err := lock.Acquire(context.Background(), domain.MechanismMock)
	if err != nil {
		t.Fatalf("Acquire(mock) error = %v", err)
	}
	_ = other.Release(context.Background())

	if err := lease.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	again, err := lock.Acquire(context.Background(), domain.MechanismEmail)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	_ = again.Release(context.Background())
}

func TestRunLockReleaseKeepsForeignLease(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	tokens := []string{"first", "second"}
	lock, err := newRunLock(rdb, time.Minute, func() string {
		token := tokens[0]
		tokens = tokens[1:]
		return token
	}, sleepWithContext)
	if err != nil {
		t.Fatalf("newRunLock() error = %v", err)
	}

	stale, err := lock.Acquire(context.Background(), domain.MechanismMock)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := lock.Acquire(context.Background(), domain.MechanismMock); err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}

	if err := stale.Release(context.Background()); err != nil {
		t.Fatalf("stale Release() error = %v", err)
	}
	if got, _ := mr.Get(lockKeyPrefix + "mock"); got != "second" {
		t.Fatalf("lock value = %q, want %q", got, "second")
	}

	if err := stale.Refresh(context.Background()); !errors.Is(err, domain.ErrRunLocked) {
		t.Fatalf("stale Refresh() error = %v, want ErrRunLocked", err)
	}
}

func TestLeaseRefreshExtendsTTL(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	lock, err := NewRunLock(rdb, time.Minute)
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}
	lease, err := lock.Acquire(context.Background(), domain.MechanismWebhook)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	mr.FastForward(45 * time.Second)
	if err := lease.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	mr.FastForward(45 * time.Second)

	if !mr.Exists(lockKeyPrefix + "webhook") {
		t.Fatal("lease expired despite refresh")
	}
}

func TestLeaseKeepAliveStopsOnCancel(t *testing.T) {
	t.Parallel()

	rdb, _ := newTestRedisClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	refreshes := 0
	lock, err := newRunLock(rdb, time.Minute, nil, func(ctx context.Context, d time.Duration) error {
		if d != 20*time.Second {
			t.Errorf("sleep duration = %v, want 20s", d)
		}
		refreshes++
		if refreshes == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("newRunLock() error = %v", err)
	}

	lease, err := lock.Acquire(context.Background(), domain.MechanismMock)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := lease.KeepAlive(ctx); err != nil {
		t.Fatalf("KeepAlive() error = %v", err)
	}
	if refreshes != 3 {
		t.Fatalf("sleeps = %d, want 3", refreshes)
	}
}

func TestLeaseKeepAliveRetriesFailedRefresh(t *testing.T) {
	t.Parallel()

	rdb, mr := newTestRedisClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sleeps []time.Duration
	lock, err := newRunLock(rdb, time.Minute, nil, func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		switch len(sleeps) {
		case 1:
			mr.SetError("ERR connection reset by peer")
		case 3:
			mr.SetError("")
		case 4:
			cancel()
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("newRunLock() error = %v", err)
	}

	lease, err := lock.Acquire(context.Background(), domain.MechanismEmail)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if err := lease.KeepAlive(ctx); err != nil {
		t.Fatalf("KeepAlive() error = %v", err)
	}

	want := []time.Duration{20 * time.Second, refreshRetryDelay, refreshRetryDelay, 20 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", sleeps, want)
		}
	}
	if !mr.Exists(lockKeyPrefix + "email") {
		t.Fatal("lease dropped after a recovered refresh")
	}
}

func TestLeaseKeepAliveFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		breakLease func(mr *miniredis.Miniredis)
		wantLocked bool
		wantSleeps int
	}{
		{
			name:       "redis stays unreachable",
			breakLease: func(mr *miniredis.Miniredis) { mr.SetError("ERR connection reset by peer") },
			wantSleeps: 1 + refreshRetries,
		},
		{
			name:       "lease taken over",
			breakLease: func(mr *miniredis.Miniredis) { mr.Del(lockKeyPrefix + "email") },
			wantLocked: true,
			wantSleeps: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rdb, mr := newTestRedisClient(t)

			sleeps := 0
			lock, err := newRunLock(rdb, time.Minute, nil, func(ctx context.Context, d time.Duration) error {
				sleeps++
				if sleeps == 1 {
					tt.breakLease(mr)
				}
				return nil
			})
			if err != nil {
				t.Fatalf("newRunLock() error = %v", err)
			}

			lease, err := lock.Acquire(context.Background(), domain.MechanismEmail)
			if err != nil {
				t.Fatalf("Acquire() error = %v", err)
			}

			err = lease.KeepAlive(context.Background())
			if err == nil {
				t.Fatal("KeepAlive() expected error")
			}
			if got := errors.Is(err, domain.ErrRunLocked); got != tt.wantLocked {
				t.Fatalf("KeepAlive() error = %v, ErrRunLocked = %v, want %v", err, got, tt.wantLocked)
			}
			if sleeps != tt.wantSleeps {
				t.Fatalf("sleeps = %d, want %d", sleeps, tt.wantSleeps)
			}
		})
	}
}

func TestNewRunLockRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewRunLock(nil, time.Minute); err == nil {
		t.Fatal("NewRunLock(nil) expected error")
	}
}

func TestNewRedisPingsServer(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis() error = %v", err)
	}
	_ = client.Close()

	if _, err := NewRedis(context.Background(), "::not-a-url"); err == nil {
		t.Fatal("NewRedis() with invalid url expected error")
	}
}

func newTestRedisClient(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() {
		_ = rdb.Close()
	})

	return rdb, mr
}
