package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/rhuss/identity/pkg/observability"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p != nil {
			w.Header().Set("X-User", p.Username())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func decodeErrorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error.Type
}

func TestMiddleware_Bypass(t *testing.T) {
	scheme := &mockScheme{name: "a", outcome: Failed(Unauthenticated())}
	handler := Middleware(NewChain(MissingAuthFail, scheme), nil, DefaultBypassEndpoints)(okHandler())

	for _, path := range DefaultBypassEndpoints {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
	if scheme.calls != 0 {
		t.Errorf("scheme called %d times for bypassed paths", scheme.calls)
	}
}

func TestMiddleware_Success(t *testing.T) {
	scheme := &mockScheme{name: "a", outcome: Succeeded(principal(t, "alice"))}
	handler := Middleware(NewChain(MissingAuthFail, scheme), nil, nil)(okHandler())

	req := httptest.NewRequest("GET", "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-User"); got != "alice" {
		t.Errorf("X-User = %q, want %q", got, "alice")
	}
	if scheme.calls != 1 {
		t.Errorf("scheme called %d times, want 1", scheme.calls)
	}
}

func TestMiddleware_Failure(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		challenged bool
	}{
		{"unauthenticated", Unauthenticated(), http.StatusUnauthorized, "unauthenticated", true},
		{"invalid params", InvalidParams(errors.New("bad base64")), http.StatusBadRequest, "invalid_request", false},
		{"other", Other(errors.New("db down")), http.StatusInternalServerError, "server_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := NewChain(MissingAuthFail,
				&mockScheme{name: "basic", challenge: `Basic realm="Server"`, outcome: Failed(tt.err)},
				&mockScheme{name: "bearer", challenge: "Bearer"},
			)
			handler := Middleware(chain, nil, nil)(okHandler())

			req := httptest.NewRequest("GET", "/me", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeErrorType(t, rec); got != tt.wantType {
				t.Errorf("error type = %q, want %q", got, tt.wantType)
			}

			challenges := rec.Header().Values("WWW-Authenticate")
			if tt.challenged {
				want := []string{`Basic realm="Server"`, "Bearer"}
				if !reflect.DeepEqual(challenges, want) {
					t.Errorf("WWW-Authenticate = %q, want %q", challenges, want)
				}
			} else if len(challenges) != 0 {
				t.Errorf("unexpected WWW-Authenticate %q", challenges)
			}
		})
	}
}

func TestMiddleware_FailureHidesCause(t *testing.T) {
	chain := NewChain(MissingAuthFail, &mockScheme{name: "a", outcome: Failed(Other(errors.New("secret dsn")))})
	handler := Middleware(chain, nil, nil)(okHandler())

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if body := rec.Body.String(); strings.Contains(body, "secret dsn") {
		t.Errorf("response leaks cause: %s", body)
	}
}

func TestMiddleware_ForwardIsAnonymous(t *testing.T) {
	chain := NewChain(MissingAuthForward, &mockScheme{name: "a", outcome: Forwarded()})
	handler := Middleware(chain, nil, nil)(okHandler())

	req := httptest.NewRequest("GET", "/public", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-User"); got != "" {
		t.Errorf("X-User = %q, want anonymous", got)
	}
}

func TestRequirePrincipal(t *testing.T) {
	chain := NewChain(MissingAuthForward, &mockScheme{name: "bearer", challenge: "Bearer", outcome: Forwarded()})
	handler := Middleware(chain, nil, nil)(RequirePrincipal(okHandler()))

	req := httptest.NewRequest("GET", "/me", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}

	chain = NewChain(MissingAuthForward, &mockScheme{name: "bearer", outcome: Succeeded(principal(t, "bob"))})
	handler = Middleware(chain, nil, nil)(RequirePrincipal(okHandler()))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/me", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_DownstreamUnauthorized(t *testing.T) {
	chain := NewChain(MissingAuthFail, &mockScheme{name: "a", challenge: "Bearer", outcome: Succeeded(principal(t, "alice"))})
	denied := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	handler := Middleware(chain, nil, nil)(denied)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if got := rec.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
}

func TestMiddleware_RateLimit(t *testing.T) {
	data := NewUserData("limited")
	data.ID = "1"
	data.Roles.Add("trial")
	p, err := NewPrincipal(data)
	if err != nil {
		t.Fatal(err)
	}

	limiter := NewInProcessLimiter(map[string]RoleLimit{"trial": {RequestsPerMinute: 2}}, 0)
	chain := NewChain(MissingAuthFail, &mockScheme{name: "a", outcome: Succeeded(p)})
	handler := Middleware(chain, limiter, nil)(okHandler())

	before := rejected(t, "trial")

	for i := range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := decodeErrorType(t, rec); got != "too_many_requests" {
		t.Errorf("error type = %q", got)
	}

	after := rejected(t, "trial")
	if after-before != 1 {
		t.Errorf("rejections recorded = %v, want 1", after-before)
	}
}

func TestInProcessLimiter(t *testing.T) {
	mk := func(name string, roles ...string) *Principal {
		d := NewUserData(name)
		d.ID = UserID(name)
		d.Roles = NewRoles(roles...)
		p, err := NewPrincipal(d)
		if err != nil {
			t.Fatal(err)
		}
		return p
	}

	limiter := NewInProcessLimiter(map[string]RoleLimit{
		"basic":    {RequestsPerMinute: 1},
		"premium":  {RequestsPerMinute: 5},
		"internal": {RequestsPerMinute: 0},
	}, 3)

	tests := []struct {
		name     string
		p        *Principal
		wantRole string
		wantRPM  int
	}{
		{"no roles", mk("a"), "default", 3},
		{"unknown role", mk("b", "guest"), "default", 3},
		{"single role", mk("c", "basic"), "basic", 1},
		{"most generous wins", mk("d", "basic", "premium"), "premium", 5},
		{"unlimited wins", mk("e", "premium", "internal"), "internal", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, rpm := limiter.limitFor(tt.p)
			if role != tt.wantRole || rpm != tt.wantRPM {
				t.Errorf("limitFor = %q/%d, want %q/%d", role, rpm, tt.wantRole, tt.wantRPM)
			}
		})
	}

	basic := mk("f", "basic")
	if err := limiter.Allow(context.Background(), basic); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := limiter.Allow(context.Background(), basic)
	if !errors.Is(err, ErrTooManyRequests) {
		t.Fatalf("second request error = %v, want ErrTooManyRequests", err)
	}

	unlimited := mk("g", "internal")
	for range 10 {
		if err := limiter.Allow(context.Background(), unlimited); err != nil {
			t.Fatalf("unlimited principal rejected: %v", err)
		}
	}
}

func rejected(t *testing.T, role string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c := observability.RateLimitRejectedTotal.WithLabelValues(role)
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}
