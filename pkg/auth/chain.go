package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rhuss/identity/pkg/debug"
	"github.com/rhuss/identity/pkg/observability"
)

// Chain evaluates schemes in registration order.
type Chain struct {
	// Schemes are evaluated left to right.
	Schemes []Scheme

	// MissingAuth decides the result when all schemes forward.
	MissingAuth MissingAuthPolicy
}

// NewChain creates a chain over schemes with the given policy.
func NewChain(policy MissingAuthPolicy, schemes ...Scheme) *Chain {
	return &Chain{Schemes: schemes, MissingAuth: policy}
}

// Setup runs the one-time setup hook of every scheme that has one.
func (c *Chain) Setup(ctx context.Context) error {
	if len(c.Schemes) == 0 {
		slog.Warn("no authentication schemes configured")
	}
	for _, s := range c.Schemes {
		setup, ok := s.(SetupScheme)
		if !ok {
			continue
		}
		if err := setup.Setup(ctx); err != nil {
			return fmt.Errorf("setting up %s scheme: %w", s.Name(), err)
		}
	}
	return nil
}

// Authenticate runs the chain. It stops on the first Success or Failure.
// If all schemes forward, the MissingAuth policy decides.
//
// A scheme that reports Success with an invalid principal is broken; the
// chain panics rather than let the request through.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) Outcome {
	for _, s := range c.Schemes {
		out := s.Authenticate(ctx, r)
		observability.AuthenticationsTotal.WithLabelValues(s.Name(), out.Decision.String()).Inc()
		debug.Log("chain", "scheme decided", "scheme", s.Name(), "decision", out.Decision.String(), "path", r.URL.Path)

		switch out.Decision {
		case Success:
			if !out.Principal.valid() {
				panic(fmt.Sprintf("auth: scheme %q produced an invalid principal", s.Name()))
			}
			return out
		case Failure:
			return Failed(out.Error())
		}
	}

	debug.Trace("chain", "no scheme decided", "policy", c.MissingAuth.String(), "path", r.URL.Path)
	if c.MissingAuth == MissingAuthForward {
		return Forwarded()
	}
	return Failed(Unauthenticated())
}

// Challenges returns one challenge per configured scheme, in order.
func (c *Chain) Challenges() []string {
	out := make([]string, 0, len(c.Schemes))
	for _, s := range c.Schemes {
		out = append(out, s.Challenge())
	}
	return out
}

// WriteChallenges adds a WWW-Authenticate value per scheme to h. An
// existing WWW-Authenticate header is left untouched.
func (c *Chain) WriteChallenges(h http.Header) {
	if len(h.Values("WWW-Authenticate")) > 0 {
		return
	}
	for _, challenge := range c.Challenges() {
		h.Add("WWW-Authenticate", challenge)
	}
}
