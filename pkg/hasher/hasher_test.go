package hasher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/identity/pkg/auth"
)

func testHashers(t *testing.T) []Hasher {
	t.Helper()
	pb, err := NewPBKDF2(PBKDF2Config{Iterations: 1000, Seed: []byte("seed")})
	if err != nil {
		t.Fatalf("NewPBKDF2: %v", err)
	}
	bc, err := NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	return []Hasher{
		NewInsecureIdentity(),
		pb,
		NewArgon2(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1}),
		bc,
	}
}

func TestHasherRoundTrip(t *testing.T) {
	ctx := context.Background()
	passwords := []string{"pass1", "", "correct horse battery staple", "pässwörd ✓"}

	for _, h := range testHashers(t) {
		t.Run(h.Name(), func(t *testing.T) {
			for _, pw := range passwords {
				user := auth.NewUserData("user1")
				hash, err := h.HashPassword(ctx, user, pw)
				if err != nil {
					t.Fatalf("HashPassword(%q): %v", pw, err)
				}
				ok, err := h.VerifyPassword(ctx, user, hash, pw)
				if err != nil {
					t.Fatalf("VerifyPassword(%q): %v", pw, err)
				}
				if !ok {
					t.Errorf("VerifyPassword(%q) = false, want true", pw)
				}
			}
		})
	}
}

func TestHasherRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	for _, h := range testHashers(t) {
		t.Run(h.Name(), func(t *testing.T) {
			user := auth.NewUserData("user1")
			hash, err := h.HashPassword(ctx, user, "pass1")
			if err != nil {
				t.Fatalf("HashPassword: %v", err)
			}
			for _, wrong := range []string{"pass2", "pass", "pass11", "PASS1", ""} {
				ok, err := h.VerifyPassword(ctx, user, hash, wrong)
				if err != nil {
					t.Fatalf("VerifyPassword(%q): %v", wrong, err)
				}
				if ok {
					t.Errorf("VerifyPassword(%q) = true, want false", wrong)
				}
			}
		})
	}
}

func TestHasherLengthMismatch(t *testing.T) {
	ctx := context.Background()
	for _, h := range testHashers(t) {
		t.Run(h.Name(), func(t *testing.T) {
			user := auth.NewUserData("user1")
			hash, err := h.HashPassword(ctx, user, "pass1")
			if err != nil {
				t.Fatalf("HashPassword: %v", err)
			}
			for _, bad := range []auth.PasswordHash{hash[:len(hash)-1], append(append(auth.PasswordHash{}, hash...), 'x'), nil} {
				ok, err := h.VerifyPassword(ctx, user, bad, "pass1")
				if err != nil {
					t.Errorf("VerifyPassword(len=%d) error = %v, want nil", len(bad), err)
				}
				if ok {
					t.Errorf("VerifyPassword(len=%d) = true, want false", len(bad))
				}
			}
		})
	}
}

func TestPBKDF2SaltIncludesUsername(t *testing.T) {
	ctx := context.Background()
	h, err := NewPBKDF2(PBKDF2Config{Iterations: 1000, Seed: []byte("seed")})
	if err != nil {
		t.Fatal(err)
	}

	a, _ := h.HashPassword(ctx, auth.NewUserData("alice"), "secret")
	b, _ := h.HashPassword(ctx, auth.NewUserData("bob"), "secret")
	if string(a) == string(b) {
		t.Fatal("same password for different users produced the same hash")
	}
	if len(a) != DefaultPBKDF2KeyLength {
		t.Errorf("hash length = %d, want %d", len(a), DefaultPBKDF2KeyLength)
	}

	ok, _ := h.VerifyPassword(ctx, auth.NewUserData("bob"), a, "secret")
	if ok {
		t.Error("hash for alice verified for bob")
	}
}

func TestPBKDF2Config(t *testing.T) {
	if _, err := NewPBKDF2(PBKDF2Config{Algorithm: "md5"}); err == nil {
		t.Error("expected error for unsupported algorithm")
	}

	h, err := NewPBKDF2(PBKDF2Config{Algorithm: "sha512", Iterations: 10, KeyLength: 64})
	if err != nil {
		t.Fatal(err)
	}
	hash, _ := h.HashPassword(context.Background(), auth.NewUserData("u"), "p")
	if len(hash) != 64 {
		t.Errorf("hash length = %d, want 64", len(hash))
	}
}

func TestArgon2Encoding(t *testing.T) {
	ctx := context.Background()
	h := NewArgon2(Argon2Config{Memory: 1024, Iterations: 2, Parallelism: 1})
	user := auth.NewUserData("user1")

	first, err := h.HashPassword(ctx, user, "pass1")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(first), "$argon2id$v=19$m=1024,t=2,p=1$") {
		t.Errorf("unexpected encoding %q", first)
	}

	second, _ := h.HashPassword(ctx, user, "pass1")
	if string(first) == string(second) {
		t.Error("expected a fresh salt per call")
	}

	// Parameters come from the hash, not the verifier.
	other := NewArgon2(Argon2Config{})
	ok, err := other.VerifyPassword(ctx, user, first, "pass1")
	if err != nil || !ok {
		t.Errorf("VerifyPassword with default config = %v, %v; want true, nil", ok, err)
	}

	for _, bad := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$AA$AA", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=1,t=1,p=1$!!$AA"} {
		if _, _, _, err := decodeArgon2(bad); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("decodeArgon2(%q) error = %v, want ErrMalformedHash", bad, err)
		}
	}
}

func TestArgon2RejectsZeroParameters(t *testing.T) {
	ctx := context.Background()
	h := NewArgon2(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1})
	user := auth.NewUserData("user1")

	stored, err := h.HashPassword(ctx, user, "pass1")
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(string(stored), "$")

	for _, params := range []string{"m=0,t=1,p=1", "m=1024,t=0,p=1", "m=1024,t=1,p=0"} {
		t.Run(params, func(t *testing.T) {
			corrupt := append([]string(nil), parts...)
			corrupt[3] = params
			encoded := strings.Join(corrupt, "$")

			if _, _, _, err := decodeArgon2(encoded); !errors.Is(err, ErrMalformedHash) {
				t.Errorf("decodeArgon2 error = %v, want ErrMalformedHash", err)
			}
			ok, err := h.VerifyPassword(ctx, user, auth.PasswordHash(encoded), "pass1")
			if err != nil || ok {
				t.Errorf("VerifyPassword = %v, %v; want false, nil", ok, err)
			}
		})
	}
}

func TestBcryptCostRange(t *testing.T) {
	if _, err := NewBcrypt(1); err == nil {
		t.Error("expected error for cost below minimum")
	}
	if _, err := NewBcrypt(100); err == nil {
		t.Error("expected error for cost above maximum")
	}
	if _, err := NewBcrypt(0); err != nil {
		t.Errorf("default cost: %v", err)
	}
}

// blockingHasher blocks every call until release is closed.
type blockingHasher struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingHasher) Name() string { return "blocking" }

func (b *blockingHasher) HashPassword(context.Context, auth.UserData, string) (auth.PasswordHash, error) {
	b.started <- struct{}{}
	<-b.release
	return auth.PasswordHash("h"), nil
}

func (b *blockingHasher) VerifyPassword(context.Context, auth.UserData, auth.PasswordHash, string) (bool, error) {
	b.started <- struct{}{}
	<-b.release
	return true, nil
}

func TestPoolBoundsConcurrency(t *testing.T) {
	inner := &blockingHasher{started: make(chan struct{}, 4), release: make(chan struct{})}
	pool := NewPool(inner, 1)
	user := auth.NewUserData("u")

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.HashPassword(context.Background(), user, "p"); err != nil {
				t.Errorf("HashPassword: %v", err)
			}
		}()
	}

	<-inner.started
	select {
	case <-inner.started:
		t.Fatal("second computation started while the only worker was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(inner.release)
	wg.Wait()
}

func TestPoolCancelledWhileQueued(t *testing.T) {
	inner := &blockingHasher{started: make(chan struct{}, 1), release: make(chan struct{})}
	pool := NewPool(inner, 1)
	user := auth.NewUserData("u")

	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.VerifyPassword(context.Background(), user, nil, "p")
	}()
	<-inner.started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.VerifyPassword(ctx, user, nil, "p")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}

	close(inner.release)
	<-done
}

func TestPoolDelegates(t *testing.T) {
	pool := NewPool(NewInsecureIdentity(), 0)
	if pool.Name() != "identity" {
		t.Errorf("Name() = %q, want identity", pool.Name())
	}
	ctx := context.Background()
	user := auth.NewUserData("u")
	hash, err := pool.HashPassword(ctx, user, "p")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := pool.VerifyPassword(ctx, user, hash, "p")
	if err != nil || !ok {
		t.Errorf("VerifyPassword = %v, %v; want true, nil", ok, err)
	}
}
