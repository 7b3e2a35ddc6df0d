package auth

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RateLimiter checks whether a request should be allowed based on the
// principal's roles.
type RateLimiter interface {
	Allow(ctx context.Context, p *Principal) error
}

// RoleLimit holds rate limit settings for a role.
type RoleLimit struct {
	RequestsPerMinute int
}

// LimitError is returned by InProcessLimiter when a principal is over its
// limit. It matches ErrTooManyRequests.
type LimitError struct {
	Role string
}

func (e *LimitError) Error() string { return ErrTooManyRequests.Error() + " for role " + e.Role }

func (e *LimitError) Unwrap() error { return ErrTooManyRequests }

// InProcessLimiter is a fixed-window rate limiter that tracks request
// counts per principal in a bounded in-memory LRU.
type InProcessLimiter struct {
	roles      map[string]RoleLimit
	defaultRPM int
	mu         sync.Mutex
	counters   *lru.Cache[string, *counter]
}

type counter struct {
	count    int
	windowAt time.Time
}

// DefaultLimiterCapacity bounds the number of tracked principals.
const DefaultLimiterCapacity = 10000

// NewInProcessLimiter creates a rate limiter with per-role configuration.
// A principal holding several configured roles gets the most generous one.
func NewInProcessLimiter(roles map[string]RoleLimit, defaultRPM int) *InProcessLimiter {
	counters, err := lru.New[string, *counter](DefaultLimiterCapacity)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &InProcessLimiter{
		roles:      roles,
		defaultRPM: defaultRPM,
		counters:   counters,
	}
}

// Allow checks if the request is within the rate limit.
func (l *InProcessLimiter) Allow(_ context.Context, p *Principal) error {
	role, rpm := l.limitFor(p)
	if rpm <= 0 {
		return nil // no limit
	}

	key := p.Username()

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters.Get(key)
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters.Add(key, &counter{count: 1, windowAt: now})
		return nil
	}

	c.count++
	if c.count > rpm {
		return &LimitError{Role: role}
	}

	return nil
}

// limitFor returns the role whose limit applies to p and that limit.
func (l *InProcessLimiter) limitFor(p *Principal) (string, int) {
	role, rpm := "default", l.defaultRPM
	found := false
	for _, r := range p.roles.Values() {
		rl, ok := l.roles[r]
		if !ok {
			continue
		}
		if !found || rl.RequestsPerMinute <= 0 || (rpm > 0 && rl.RequestsPerMinute > rpm) {
			role, rpm = r, rl.RequestsPerMinute
			found = true
		}
		if rpm <= 0 {
			break
		}
	}
	return role, rpm
}
