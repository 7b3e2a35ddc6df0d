package hasher

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/observability"
)

// Pool bounds the number of concurrent hash computations so slow KDFs
// cannot occupy every CPU while other requests wait. Callers that are
// cancelled while queued give up without hashing.
type Pool struct {
	inner Hasher
	sem   *semaphore.Weighted
}

// NewPool wraps h. A size <= 0 means runtime.GOMAXPROCS(0).
func NewPool(h Hasher, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{inner: h, sem: semaphore.NewWeighted(int64(size))}
}

// Name returns the wrapped hasher's name.
func (p *Pool) Name() string { return p.inner.Name() }

// HashPassword runs the wrapped hasher once a worker slot is free.
func (p *Pool) HashPassword(ctx context.Context, user auth.UserData, password string) (auth.PasswordHash, error) {
	var out auth.PasswordHash
	err := p.run(ctx, "hash", func() error {
		var err error
		out, err = p.inner.HashPassword(ctx, user, password)
		return err
	})
	return out, err
}

// VerifyPassword runs the wrapped verification once a worker slot is free.
func (p *Pool) VerifyPassword(ctx context.Context, user auth.UserData, hash auth.PasswordHash, password string) (bool, error) {
	var ok bool
	err := p.run(ctx, "verify", func() error {
		var err error
		ok, err = p.inner.VerifyPassword(ctx, user, hash, password)
		return err
	})
	return ok, err
}

func (p *Pool) run(ctx context.Context, op string, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for hash worker: %w", err)
	}
	defer p.sem.Release(1)

	observability.HashWorkersBusy.Inc()
	defer observability.HashWorkersBusy.Dec()

	start := time.Now()
	err := fn()
	observability.PasswordHashDuration.WithLabelValues(p.inner.Name(), op).Observe(time.Since(start).Seconds())
	return err
}
