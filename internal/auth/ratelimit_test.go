package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mrlokans/librarian/internal/config"
)

// fakeClock lets tests move the throttle through its window and lockout.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testThrottle(t *testing.T, cfg config.Auth) (*loginThrottle, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	lt := newLoginThrottle(cfg)
	lt.now = clock.now
	t.Cleanup(lt.stop)
	return lt, clock
}

func TestLoginThrottle_Defaults(t *testing.T) {
	lt, _ := testThrottle(t, config.Auth{})

	assert.Equal(t, defaultMaxLoginAttempts, lt.limit)
	assert.Equal(t, defaultRateLimitWindow, lt.window)
	assert.Equal(t, defaultLockoutDuration, lt.lockout)
}

func TestLoginThrottle_LocksAfterLimit(t *testing.T) {
	lt, clock := testThrottle(t, config.Auth{MaxLoginAttempts: 3, RateLimitWindow: time.Minute, LockoutDuration: 10 * time.Minute})

	assert.False(t, lt.fail("10.0.0.1", "alice"))
	assert.False(t, lt.fail("10.0.0.1", "alice"))
	assert.Zero(t, lt.blocked("10.0.0.1", "alice"))

	assert.True(t, lt.fail("10.0.0.1", "alice"))
	assert.Equal(t, 10*time.Minute, lt.blocked("10.0.0.1", "alice"))

	clock.advance(4 * time.Minute)
	assert.Equal(t, 6*time.Minute, lt.blocked("10.0.0.1", "alice"))

	clock.advance(6 * time.Minute)
	assert.Zero(t, lt.blocked("10.0.0.1", "alice"))
}

func TestLoginThrottle_WindowExpiryResetsCount(t *testing.T) {
	lt, clock := testThrottle(t, config.Auth{MaxLoginAttempts: 2, RateLimitWindow: time.Minute, LockoutDuration: time.Hour})

	assert.False(t, lt.fail("10.0.0.1", "alice"))
	clock.advance(2 * time.Minute)
	assert.False(t, lt.fail("10.0.0.1", "alice"), "first failure fell outside the window")
	assert.Zero(t, lt.blocked("10.0.0.1", "alice"))
}

func TestLoginThrottle_Keys(t *testing.T) {
	lt, _ := testThrottle(t, config.Auth{MaxLoginAttempts: 2, LockoutDuration: time.Minute})

	lt.fail("10.0.0.1", "Alice")
	lt.fail("10.0.0.1", "  alice")

	tests := []struct {
		name    string
		ip      string
		login   string
		blocked bool
	}{
		{"same login any case", "10.0.0.1", "ALICE", true},
		{"other login", "10.0.0.1", "bob", false},
		{"other client", "10.0.0.2", "alice", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.blocked, lt.blocked(tt.ip, tt.login) > 0)
		})
	}
}

func TestLoginThrottle_SuccessForgetsFailures(t *testing.T) {
	lt, _ := testThrottle(t, config.Auth{MaxLoginAttempts: 2})

	lt.fail("10.0.0.1", "alice")
	lt.succeed("10.0.0.1", "Alice")

	assert.False(t, lt.fail("10.0.0.1", "alice"))
}

func TestLoginThrottle_Sweep(t *testing.T) {
	lt, clock := testThrottle(t, config.Auth{MaxLoginAttempts: 1, RateLimitWindow: time.Minute, LockoutDuration: 5 * time.Minute})

	lt.fail("10.0.0.1", "locked")
	clock.advance(2 * time.Minute)
	lt.fail("10.0.0.2", "fresh")
	lt.sweep()
	assert.Len(t, lt.failures, 2, "lockout still running for the first entry")

	clock.advance(6 * time.Minute)
	lt.sweep()
	assert.Empty(t, lt.failures)
}

func TestLoginThrottle_StopIsIdempotent(t *testing.T) {
	lt := newLoginThrottle(config.Auth{})
	lt.stop()
	assert.NotPanics(t, lt.stop)
}

func TestRetryAfterSeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{30 * time.Minute, 1800},
		{1500 * time.Millisecond, 2},
		{time.Millisecond, 1},
		{0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.wait.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfterSeconds(tt.wait))
		})
	}
}
