// Package storagetest provides a conformance suite for storage.UserStore
// implementations.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/storage"
)

// Run exercises the UserStore contract. newStore must return an empty store
// for every call.
func Run(t *testing.T, newStore func(t *testing.T) storage.UserStore) {
	t.Run("AddAndFind", func(t *testing.T) { testAddAndFind(t, newStore(t)) })
	t.Run("FindNotFound", func(t *testing.T) { testFindNotFound(t, newStore(t)) })
	t.Run("GeneratesID", func(t *testing.T) { testGeneratesID(t, newStore(t)) })
	t.Run("DuplicateUsername", func(t *testing.T) { testDuplicateUsername(t, newStore(t)) })
	t.Run("ConcurrentAddSameUsername", func(t *testing.T) { testConcurrentAdd(t, newStore(t)) })
	t.Run("MissingPassword", func(t *testing.T) { testMissingPassword(t, newStore(t)) })
	t.Run("EmptyHashIsNotMissing", func(t *testing.T) { testEmptyHash(t, newStore(t)) })
	t.Run("SetPasswordHash", func(t *testing.T) { testSetPasswordHash(t, newStore(t)) })
	t.Run("SetPasswordHashNotFound", func(t *testing.T) { testSetPasswordHashNotFound(t, newStore(t)) })
}

func newUser(username string) storage.StoredUser {
	claims := auth.Claims{}
	claims.Add("email", auth.StringClaim(username+"@example.com"))
	claims.Add("age", auth.IntClaim(42))
	claims.Add("tags", auth.ArrayClaim(auth.StringClaim("a"), auth.BoolClaim(true)))
	return storage.StoredUser{
		Username:     username,
		Claims:       claims,
		Roles:        auth.NewRoles("admin", "user"),
		PasswordHash: auth.PasswordHash{0x01, 0x02, 0x00, 0xff},
	}
}

func testAddAndFind(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	in := newUser("alice")
	in.ID = "user-alice"

	id, err := s.AddUser(ctx, in)
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if id != "user-alice" {
		t.Errorf("AddUser id = %q, want %q", id, "user-alice")
	}

	got, err := s.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if got.ID != "user-alice" || got.Username != "alice" {
		t.Errorf("got %q/%q, want user-alice/alice", got.ID, got.Username)
	}
	if !got.Roles.Contains("admin") || !got.Roles.Contains("user") || got.Roles.Len() != 2 {
		t.Errorf("roles = %v, want [admin user]", got.Roles.Values())
	}
	if v, ok := got.Claims.Get("email"); !ok {
		t.Error("email claim missing")
	} else if s, _ := v.AsString(); s != "alice@example.com" {
		t.Errorf("email claim = %q, want alice@example.com", s)
	}
	if v, ok := got.Claims.Get("age"); !ok {
		t.Error("age claim missing")
	} else if n, ok := v.AsInt(); !ok || n != 42 {
		t.Errorf("age claim = %v, want int 42", v.Any())
	}
	if v, ok := got.Claims.Get("tags"); !ok {
		t.Error("tags claim missing")
	} else if arr, ok := v.AsArray(); !ok || len(arr) != 2 {
		t.Errorf("tags claim = %v, want 2-element array", v.Any())
	}
	if string(got.PasswordHash) != string(in.PasswordHash) {
		t.Errorf("password hash = %x, want %x", got.PasswordHash, in.PasswordHash)
	}
}

func testFindNotFound(t *testing.T, s storage.UserStore) {
	_, err := s.FindByUsername(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("FindByUsername error = %v, want ErrUserNotFound", err)
	}
	_, err = s.PasswordHash(context.Background(), "nobody")
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("PasswordHash error = %v, want ErrUserNotFound", err)
	}
}

func testGeneratesID(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	id, err := s.AddUser(ctx, newUser("bob"))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
	got, err := s.FindByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if got.ID != id {
		t.Errorf("stored id = %q, want %q", got.ID, id)
	}
}

func testDuplicateUsername(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	if _, err := s.AddUser(ctx, newUser("carol")); err != nil {
		t.Fatalf("first AddUser: %v", err)
	}
	dup := newUser("carol")
	dup.PasswordHash = auth.PasswordHash("other")
	if _, err := s.AddUser(ctx, dup); !errors.Is(err, storage.ErrUsernameExists) {
		t.Fatalf("second AddUser error = %v, want ErrUsernameExists", err)
	}

	hash, err := s.PasswordHash(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if string(hash) == "other" {
		t.Error("duplicate AddUser overwrote the original record")
	}
}

func testConcurrentAdd(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	const n = 8

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u := newUser("user1")
			u.PasswordHash = auth.PasswordHash(fmt.Sprintf("hash-%d", i))
			_, errs[i] = s.AddUser(ctx, u)
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, storage.ErrUsernameExists):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Errorf("got %d successes and %d duplicates, want 1 and %d", ok, dup, n-1)
	}
}

func testMissingPassword(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	u := newUser("dave")
	u.PasswordHash = nil
	if _, err := s.AddUser(ctx, u); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	hash, err := s.PasswordHash(ctx, "dave")
	if err != nil {
		t.Fatalf("PasswordHash: %v", err)
	}
	if hash != nil {
		t.Errorf("PasswordHash = %x, want nil", hash)
	}

	got, err := s.FindByUsername(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	if got.PasswordHash != nil {
		t.Errorf("StoredUser.PasswordHash = %x, want nil", got.PasswordHash)
	}
}

func testEmptyHash(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	u := newUser("frank")
	u.PasswordHash = auth.PasswordHash{}
	if _, err := s.AddUser(ctx, u); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	check := func(when string) {
		t.Helper()
		hash, err := s.PasswordHash(ctx, "frank")
		if err != nil {
			t.Fatalf("%s: PasswordHash: %v", when, err)
		}
		if hash == nil || len(hash) != 0 {
			t.Errorf("%s: PasswordHash = %#v, want empty non-nil", when, hash)
		}
		got, err := s.FindByUsername(ctx, "frank")
		if err != nil {
			t.Fatalf("%s: FindByUsername: %v", when, err)
		}
		if got.PasswordHash == nil || len(got.PasswordHash) != 0 {
			t.Errorf("%s: StoredUser.PasswordHash = %#v, want empty non-nil", when, got.PasswordHash)
		}
	}
	check("after AddUser")

	if err := s.SetPasswordHash(ctx, "frank", nil); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPasswordHash(ctx, "frank", auth.PasswordHash{}); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	check("after SetPasswordHash")
}

func testSetPasswordHash(t *testing.T, s storage.UserStore) {
	ctx := context.Background()
	if _, err := s.AddUser(ctx, newUser("erin")); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPasswordHash(ctx, "erin", auth.PasswordHash("new-hash")); err != nil {
		t.Fatalf("SetPasswordHash: %v", err)
	}
	hash, err := s.PasswordHash(ctx, "erin")
	if err != nil {
		t.Fatal(err)
	}
	if string(hash) != "new-hash" {
		t.Errorf("hash = %q, want new-hash", hash)
	}

	got, err := s.FindByUsername(ctx, "erin")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Roles.Contains("admin") {
		t.Error("SetPasswordHash lost the user's roles")
	}
}

func testSetPasswordHashNotFound(t *testing.T, s storage.UserStore) {
	err := s.SetPasswordHash(context.Background(), "nobody", auth.PasswordHash("x"))
	if !errors.Is(err, storage.ErrUserNotFound) {
		t.Errorf("SetPasswordHash error = %v, want ErrUserNotFound", err)
	}
}
