package integration

import (
	"bytes"
	"net/http"
	"reflect"
	"testing"

	"github.com/rhuss/identity/pkg/auth/basic"
	"github.com/rhuss/identity/pkg/server"
)

func TestInvalidJSON(t *testing.T) {
	resp, err := http.Post(testEnv.BaseURL()+"/register", "application/json", bytes.NewReader([]byte(`{invalid json`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var errResp server.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	if errResp.Error.Type != server.ErrorTypeInvalidRequest {
		t.Errorf("error.type = %q, want %q", errResp.Error.Type, server.ErrorTypeInvalidRequest)
	}
}

func TestUnauthenticatedListsAllChallenges(t *testing.T) {
	resp := getURL(t, "/me", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	want := []string{`Basic realm="Server", charset="UTF-8"`, "Bearer", "Cookie", "ApiKey"}
	if got := resp.Header.Values("WWW-Authenticate"); !reflect.DeepEqual(got, want) {
		t.Errorf("WWW-Authenticate = %q, want %q", got, want)
	}

	var errResp server.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil || errResp.Error.Type != server.ErrorTypeUnauthenticated {
		t.Errorf("error = %+v, want type unauthenticated", errResp.Error)
	}
}

func TestMalformedCredentialsAreBadRequest(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
	}{
		{"bad base64", http.Header{"Authorization": {"Basic ***"}}},
		{"bad jwt", http.Header{"Authorization": {"Bearer not.a.jwt"}}},
		{"empty bearer", http.Header{"Authorization": {"Bearer"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := getURL(t, "/me", tt.header)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			if got := resp.Header.Values("WWW-Authenticate"); len(got) != 0 {
				t.Errorf("400 response carries challenges %q", got)
			}
		})
	}
}

func TestFailureStopsTheChain(t *testing.T) {
	// A wrong Basic password fails even though a valid API key follows.
	header := http.Header{
		"Authorization": {basic.Header("alice", "nope")},
		"X-API-Key":     {testAPIKey},
	}
	resp := getURL(t, "/me", header)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	resp := postJSON(t, "/register", map[string]any{"username": "alice", "password": "x"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	var errResp server.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error.Type != server.ErrorTypeConflict {
		t.Errorf("error.type = %q, want conflict", errResp.Error.Type)
	}
}
