package auth

import (
	"context"
	"fmt"
	"net/http"
)

// Decision represents the three possible outcomes of a scheme.
type Decision int

const (
	// Success means credentials are valid. The chain stops and the
	// principal is used.
	Success Decision = iota

	// Failure means credentials are present but invalid. The chain stops
	// and the request is rejected.
	Failure

	// Forward means the scheme does not apply to the request. The chain
	// continues to the next scheme.
	Forward
)

func (d Decision) String() string {
	switch d {
	case Success:
		return "success"
	case Failure:
		return "failure"
	default:
		return "forward"
	}
}

// Outcome carries the result of an authentication attempt.
type Outcome struct {
	Decision  Decision
	Principal *Principal // populated only when Decision == Success
	Err       error      // populated only when Decision == Failure
}

// Succeeded returns a Success outcome for p.
func Succeeded(p *Principal) Outcome {
	return Outcome{Decision: Success, Principal: p}
}

// Failed returns a Failure outcome for err.
func Failed(err error) Outcome {
	return Outcome{Decision: Failure, Err: err}
}

// Forwarded returns a Forward outcome.
func Forwarded() Outcome {
	return Outcome{Decision: Forward}
}

// Error returns the outcome's error as an *Error, or nil.
func (o Outcome) Error() *Error {
	if o.Decision != Failure {
		return nil
	}
	if o.Err == nil {
		return Unauthenticated()
	}
	return AsError(o.Err)
}

// Scheme examines request credentials and returns a three-way outcome.
type Scheme interface {
	// Name identifies the scheme in logs and metrics.
	Name() string

	// Authenticate inspects the request's credential material.
	Authenticate(ctx context.Context, r *http.Request) Outcome

	// Challenge returns the WWW-Authenticate value for this scheme.
	Challenge() string
}

// SetupScheme is implemented by schemes that need one-time,
// request-independent setup at boot.
type SetupScheme interface {
	Setup(ctx context.Context) error
}

// MissingAuthPolicy governs the chain result when every scheme forwards.
type MissingAuthPolicy int

const (
	// MissingAuthFail turns "no applicable scheme" into Unauthenticated.
	MissingAuthFail MissingAuthPolicy = iota

	// MissingAuthForward propagates Forward; the route decides whether
	// anonymous access is allowed.
	MissingAuthForward
)

func (p MissingAuthPolicy) String() string {
	if p == MissingAuthForward {
		return "forward"
	}
	return "fail"
}

// ParseMissingAuthPolicy parses "fail" or "forward".
func ParseMissingAuthPolicy(s string) (MissingAuthPolicy, error) {
	switch s {
	case "fail", "":
		return MissingAuthFail, nil
	case "forward":
		return MissingAuthForward, nil
	}
	return MissingAuthFail, fmt.Errorf("unknown missing auth policy %q", s)
}
