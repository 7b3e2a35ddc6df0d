package users

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rhuss/identity/pkg/auth"
	"github.com/rhuss/identity/pkg/hasher"
	"github.com/rhuss/identity/pkg/storage"
	"github.com/rhuss/identity/pkg/storage/memory"
)

func ptr(s string) *string { return &s }

func newRepo(t *testing.T) *Repository {
	t.Helper()
	h, err := hasher.NewPBKDF2(hasher.PBKDF2Config{Iterations: 1000, Seed: []byte("test")})
	if err != nil {
		t.Fatal(err)
	}
	return New(memory.New(), h)
}

func TestAuthenticate(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	data := auth.NewUserData("user1")
	data.Roles.Add("admin")
	data.Claims.Add("email", auth.StringClaim("user1@example.com"))
	id, err := repo.AddUser(ctx, data, ptr("pass1"))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	p, err := repo.Authenticate(ctx, "user1", "pass1")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.Username() != "user1" || p.ID() != id {
		t.Errorf("principal = %q/%q, want user1/%q", p.Username(), p.ID(), id)
	}
	if !p.HasRole("admin") {
		t.Error("expected admin role")
	}
	if !p.Claims().Contains("email") {
		t.Error("expected email claim")
	}
}

func TestAuthenticateErrors(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	if _, err := repo.AddUser(ctx, auth.NewUserData("user1"), ptr("pass1")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.AddUser(ctx, auth.NewUserData("social"), nil); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"unknown user", "nobody", "pass1", ErrUserNotFound},
		{"wrong password", "user1", "wrongpass", ErrIncorrectPassword},
		{"no password set", "social", "", ErrMissingPassword},
		{"no password set with input", "social", "anything", ErrMissingPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := repo.Authenticate(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Error("expected nil principal")
			}
			if AuthError(err).Kind != auth.KindUnauthenticated {
				t.Errorf("AuthError kind = %v, want unauthenticated", AuthError(err).Kind)
			}
		})
	}
}

func TestAddUserConcurrent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = repo.AddUser(ctx, auth.NewUserData("user1"), ptr("pass1"))
		}()
	}
	wg.Wait()

	var ok, exists int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUsernameExists):
			exists++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || exists != 1 {
		t.Errorf("got %d successes, %d UsernameExists; want 1 and 1", ok, exists)
	}
}

func TestAddUserRequiresUsername(t *testing.T) {
	repo := newRepo(t)
	_, err := repo.AddUser(context.Background(), auth.UserData{}, ptr("x"))
	if !errors.Is(err, auth.ErrEmptyUsername) {
		t.Errorf("error = %v, want ErrEmptyUsername", err)
	}
}

func TestFindByUsername(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	data := auth.NewUserData("user1")
	data.Roles.Add("viewer")
	if _, err := repo.AddUser(ctx, data, nil); err != nil {
		t.Fatal(err)
	}

	p, err := repo.FindByUsername(ctx, "user1")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if p.Username() != "user1" || !p.HasRole("viewer") {
		t.Errorf("unexpected principal %q roles %v", p.Username(), p.Roles().Values())
	}

	if _, err := repo.FindByUsername(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("error = %v, want ErrUserNotFound", err)
	}
}

func TestChangePassword(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	if _, err := repo.AddUser(ctx, auth.NewUserData("user1"), ptr("old")); err != nil {
		t.Fatal(err)
	}
	if err := repo.ChangePassword(ctx, "user1", ptr("new")); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, err := repo.Authenticate(ctx, "user1", "old"); !errors.Is(err, ErrIncorrectPassword) {
		t.Errorf("old password error = %v, want ErrIncorrectPassword", err)
	}
	if _, err := repo.Authenticate(ctx, "user1", "new"); err != nil {
		t.Errorf("new password: %v", err)
	}

	if err := repo.ChangePassword(ctx, "user1", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Authenticate(ctx, "user1", "new"); !errors.Is(err, ErrMissingPassword) {
		t.Errorf("after removal error = %v, want ErrMissingPassword", err)
	}

	if err := repo.ChangePassword(ctx, "nobody", ptr("x")); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user error = %v, want ErrUserNotFound", err)
	}
}

func TestPrincipalFromData(t *testing.T) {
	repo := newRepo(t)

	if _, err := repo.PrincipalFromData(auth.UserData{Username: "u"}); !errors.Is(err, auth.ErrEmptyUserID) {
		t.Errorf("error = %v, want ErrEmptyUserID", err)
	}
	p, err := repo.PrincipalFromData(auth.UserData{ID: "id", Username: "u"})
	if err != nil || p.Username() != "u" {
		t.Errorf("PrincipalFromData = %v, %v", p, err)
	}
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (f failingStore) FindByUsername(context.Context, string) (*storage.StoredUser, error) {
	return nil, f.err
}

func (f failingStore) AddUser(context.Context, storage.StoredUser) (auth.UserID, error) {
	return "", f.err
}

func (f failingStore) PasswordHash(context.Context, string) (auth.PasswordHash, error) {
	return nil, f.err
}

func (f failingStore) SetPasswordHash(context.Context, string, auth.PasswordHash) error {
	return f.err
}

func TestStoreFailuresAreOther(t *testing.T) {
	cause := errors.New("connection refused")
	repo := New(failingStore{err: cause}, hasher.NewInsecureIdentity())
	ctx := context.Background()

	_, err := repo.Authenticate(ctx, "user1", "pass1")
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want wrapped cause", err)
	}
	authErr := AuthError(err)
	if authErr.Kind != auth.KindOther {
		t.Errorf("kind = %v, want other", authErr.Kind)
	}
	if !errors.Is(authErr, cause) {
		t.Error("auth error lost the cause")
	}

	if _, err := repo.AddUser(ctx, auth.NewUserData("u"), nil); !errors.Is(err, cause) || errors.Is(err, ErrUsernameExists) {
		t.Errorf("AddUser error = %v", err)
	}
	if _, err := repo.FindByUsername(ctx, "u"); !errors.Is(err, cause) {
		t.Errorf("FindByUsername error = %v", err)
	}
}

// errHasher fails every call.
type errHasher struct{}

func (errHasher) Name() string { return "err" }

func (errHasher) HashPassword(context.Context, auth.UserData, string) (auth.PasswordHash, error) {
	return nil, errors.New("hash failed")
}

func (errHasher) VerifyPassword(context.Context, auth.UserData, auth.PasswordHash, string) (bool, error) {
	return false, errors.New("verify failed")
}

func TestHasherFailures(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	repo := New(store, errHasher{})

	if _, err := repo.AddUser(ctx, auth.NewUserData("u"), ptr("p")); err == nil {
		t.Fatal("expected hashing error")
	}
	if store.Len() != 0 {
		t.Error("failed AddUser left a record behind")
	}

	if _, err := store.AddUser(ctx, storage.StoredUser{Username: "u", PasswordHash: auth.PasswordHash("x")}); err != nil {
		t.Fatal(err)
	}
	_, err := repo.Authenticate(ctx, "u", "p")
	if err == nil || AuthError(err).Kind != auth.KindOther {
		t.Errorf("verify failure error = %v, want Other", err)
	}
}

func TestAuthErrorNil(t *testing.T) {
	if AuthError(nil) != nil {
		t.Error("AuthError(nil) should be nil")
	}
}
