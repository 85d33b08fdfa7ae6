package ratelimit

import (
	"fmt"
	"math"
	"time"
)

const secondsPerDay = 24 * 60 * 60

// ThrottleConfig bounds the delivery rate. Deliveries start at
// MinDeliveriesPerDay and ramp linearly to MaxDeliveriesPerDay over the volume
// that would be sent in WarmupDurationMinutes at full speed.
type ThrottleConfig struct {
	MinDeliveriesPerDay   int
	MaxDeliveriesPerDay   int
	WarmupDurationMinutes int
}

func (c ThrottleConfig) Validate() error {
	if c.MinDeliveriesPerDay <= 0 {
		return fmt.Errorf("min deliveries per day must be positive, got %d", c.MinDeliveriesPerDay)
	}
	if c.MaxDeliveriesPerDay <= c.MinDeliveriesPerDay {
		return fmt.Errorf("max deliveries per day (%d) must be greater than min deliveries per day (%d)",
			c.MaxDeliveriesPerDay, c.MinDeliveriesPerDay)
	}
	if c.WarmupDurationMinutes < 0 {
		return fmt.Errorf("warmup duration must not be negative, got %d", c.WarmupDurationMinutes)
	}
	return nil
}

// Throttle maps the number of deliveries made so far to the pause before the
// next one. It is not safe for concurrent use.
type Throttle struct {
	slowSleepSeconds float64
	fastSleepSeconds float64
	warmupCount      float64
	counter          int
}

func NewThrottle(cfg ThrottleConfig) (*Throttle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid throttle config: %w", err)
	}

	maxPerMinute := float64(cfg.MaxDeliveriesPerDay) / 24 / 60

	return &Throttle{
		slowSleepSeconds: secondsPerDay / float64(cfg.MinDeliveriesPerDay),
		fastSleepSeconds: secondsPerDay / float64(cfg.MaxDeliveriesPerDay),
		warmupCount:      maxPerMinute * float64(cfg.WarmupDurationMinutes),
	}, nil
}

// NextSleepSeconds counts one more delivery and returns the pause in seconds
// to observe before the following one.
func (t *Throttle) NextSleepSeconds() float64 {
	t.counter++
	return t.sleepSecondsAt(float64(t.counter))
}

// NextSleep is NextSleepSeconds as a duration.
func (t *Throttle) NextSleep() time.Duration {
	return time.Duration(t.NextSleepSeconds() * float64(time.Second))
}

// Count returns how many sleeps have been handed out.
func (t *Throttle) Count() int {
	return t.counter
}

// WarmupCount is the number of deliveries after which the throttle runs at
// the fast rate.
func (t *Throttle) WarmupCount() float64 {
	return t.warmupCount
}

func (t *Throttle) SlowSleepSeconds() float64 { return t.slowSleepSeconds }

func (t *Throttle) FastSleepSeconds() float64 { return t.fastSleepSeconds }

// sleepSecondsAt evaluates f(x) = slope*x + slow, with f(0) = slow and
// f(warmupCount) = fast, clamped into [fast, slow].
func (t *Throttle) sleepSecondsAt(count float64) float64 {
	if t.warmupCount <= 0 {
		return t.fastSleepSeconds
	}

	slope := (t.fastSleepSeconds - t.slowSleepSeconds) / t.warmupCount
	unbounded := slope*count + t.slowSleepSeconds

	return math.Max(math.Min(unbounded, t.slowSleepSeconds), t.fastSleepSeconds)
}
