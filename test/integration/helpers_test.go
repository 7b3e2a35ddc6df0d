// Package integration provides integration tests for the identity server.
//
// Tests run against a real HTTP server started in-process with
// net/http/httptest, backed by a SQLite store and the PBKDF2 hasher.
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rhuss/identity/pkg/app"
	"github.com/rhuss/identity/pkg/config"
	"github.com/rhuss/identity/pkg/server"
)

const (
	testJWTSecret = "integration-jwt-secret-32-bytes!"
	testAPIKey    = "integration-api-key"
)

// testEnv holds the shared server for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the identity server and its backing resources.
type TestEnvironment struct {
	Server *httptest.Server
	App    *app.App
	dir    string
}

// TestMain starts the identity server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

// setupTestEnvironment builds the application from a configuration that
// enables every scheme.
func setupTestEnvironment() *TestEnvironment {
	dir, err := os.MkdirTemp("", "identity-integration-")
	if err != nil {
		panic(fmt.Sprintf("creating temp dir: %v", err))
	}

	cfg := config.Defaults()
	cfg.Log.Level = "error"
	cfg.Auth.Schemes = []string{"basic", "bearer", "cookie", "apikey"}
	cfg.Auth.JWT.Secret = testJWTSecret
	cfg.Auth.Cookie.HashKey = "integration-cookie-hash-key-0001"
	cfg.Auth.Cookie.BlockKey = "integration-block-key-0000000001"
	cfg.Auth.APIKeys = []config.APIKeyConfig{
		{Key: testAPIKey, Username: "ci-bot", Roles: []string{"service"}},
	}
	cfg.Hasher.Type = "pbkdf2"
	cfg.Hasher.PBKDF2.Iterations = 1000
	cfg.Hasher.PBKDF2.Seed = "integration-seed"
	cfg.Storage.Type = "sqlite"
	cfg.Storage.SQLite.Path = filepath.Join(dir, "identity.db")
	cfg.Users = []config.UserConfig{
		{Username: "alice", Password: "wonderland", Roles: []string{"admin"}, Claims: map[string]any{"team": "core"}},
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid test config: %v", err))
	}

	slog.SetDefault(app.NewLogger(cfg.Log, io.Discard))

	a, err := app.New(context.Background(), &cfg)
	if err != nil {
		panic(fmt.Sprintf("creating app: %v", err))
	}

	srv := server.New(a, server.WithLogger(slog.Default()))

	return &TestEnvironment{
		Server: httptest.NewServer(srv.Handler()),
		App:    a,
		dir:    dir,
	}
}

// Teardown stops the server and removes the database.
func (env *TestEnvironment) Teardown() {
	if env.Server != nil {
		env.Server.Close()
	}
	if env.App != nil {
		env.App.Close()
	}
	os.RemoveAll(env.dir)
}

// BaseURL returns the identity server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.Server.URL
}

// --- HTTP helpers ---

// doRequest sends a request with an optional JSON body and extra headers.
func doRequest(t *testing.T, client *http.Client, method, path string, body any, header http.Header) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, testEnv.BaseURL()+path, rd)
	if err != nil {
		t.Fatalf("creating %s request: %v", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// postJSON sends a POST request with JSON body and returns the response.
func postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	return doRequest(t, nil, http.MethodPost, path, body, nil)
}

// getURL sends a GET request and returns the response.
func getURL(t *testing.T, path string, header http.Header) *http.Response {
	t.Helper()
	return doRequest(t, nil, http.MethodGet, path, nil, header)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// expectStatus fails the test if resp does not have the wanted status.
func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d: %s", resp.StatusCode, want, readBody(t, resp))
	}
}
