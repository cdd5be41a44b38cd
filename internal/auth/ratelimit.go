package auth

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/librarian/internal/config"
)

const (
	defaultMaxLoginAttempts = 5
	defaultRateLimitWindow  = 15 * time.Minute
	defaultLockoutDuration  = 30 * time.Minute
	throttleSweepInterval   = 5 * time.Minute
)

// loginThrottle counts failed POST /api/auth/login attempts per client IP and
// login name inside a fixed window. Reaching AUTH_MAX_LOGIN_ATTEMPTS blocks
// the pair for AUTH_LOCKOUT_DURATION.
type loginThrottle struct {
	mu       sync.Mutex
	failures map[string]*loginFailures
	limit    int
	window   time.Duration
	lockout  time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

type loginFailures struct {
	count       int
	windowStart time.Time
	blockedTill time.Time
}

func newLoginThrottle(cfg config.Auth) *loginThrottle {
	lt := &loginThrottle{
		failures: make(map[string]*loginFailures),
		limit:    cfg.MaxLoginAttempts,
		window:   cfg.RateLimitWindow,
		lockout:  cfg.LockoutDuration,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	if lt.limit <= 0 {
		lt.limit = defaultMaxLoginAttempts
	}
	if lt.window <= 0 {
		lt.window = defaultRateLimitWindow
	}
	if lt.lockout <= 0 {
		lt.lockout = defaultLockoutDuration
	}
	go lt.sweepLoop(throttleSweepInterval)
	return lt
}

// throttleKey ignores letter case and surrounding spaces so spellings of one
// login share a budget.
func throttleKey(ip, login string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(login))
}

// blocked returns how long the caller must wait, or zero when the attempt may
// proceed.
func (lt *loginThrottle) blocked(ip, login string) time.Duration {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	f, ok := lt.failures[throttleKey(ip, login)]
	if !ok {
		return 0
	}
	now := lt.now()
	if now.Before(f.blockedTill) {
		return f.blockedTill.Sub(now)
	}
	return 0
}

// fail records a rejected attempt and reports whether it started a lockout.
func (lt *loginThrottle) fail(ip, login string) bool {
	key := throttleKey(ip, login)
	now := lt.now()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	f, ok := lt.failures[key]
	if !ok || now.Sub(f.windowStart) > lt.window {
		f = &loginFailures{windowStart: now}
		lt.failures[key] = f
	}
	f.count++
	if f.count < lt.limit {
		return false
	}
	f.blockedTill = now.Add(lt.lockout)
	f.count = 0
	f.windowStart = now
	return true
}

// succeed forgets earlier failures for the pair.
func (lt *loginThrottle) succeed(ip, login string) {
	lt.mu.Lock()
	delete(lt.failures, throttleKey(ip, login))
	lt.mu.Unlock()
}

func (lt *loginThrottle) stop() {
	lt.stopOnce.Do(func() { close(lt.done) })
}

func (lt *loginThrottle) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			lt.sweep()
		case <-lt.done:
			return
		}
	}
}

// sweep drops entries whose window and lockout have both passed.
func (lt *loginThrottle) sweep() {
	now := lt.now()

	lt.mu.Lock()
	defer lt.mu.Unlock()

	for key, f := range lt.failures {
		if now.Sub(f.windowStart) > lt.window && !now.Before(f.blockedTill) {
			delete(lt.failures, key)
		}
	}
}

// retryAfterSeconds renders d for the Retry-After header, which only takes
// whole seconds.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
