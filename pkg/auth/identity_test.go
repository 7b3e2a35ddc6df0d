package auth

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNewPrincipal(t *testing.T) {
	if _, err := NewPrincipal(UserData{ID: "1"}); !errors.Is(err, ErrEmptyUsername) {
		t.Errorf("empty username error = %v", err)
	}
	if _, err := NewPrincipal(UserData{Username: "u"}); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("empty id error = %v", err)
	}

	data := NewUserData("alice")
	data.ID = "42"
	data.Roles.Add("admin")
	data.Claims.Add("email", StringClaim("alice@example.com"))

	p, err := NewPrincipal(data)
	if err != nil {
		t.Fatal(err)
	}

	// The principal does not share state with its source or its callers.
	data.Roles.Add("root")
	data.Claims.Remove("email")
	roles := p.Roles()
	roles.Add("root")
	claims := p.Claims()
	claims.Add("injected", BoolClaim(true))

	if p.HasRole("root") {
		t.Error("principal roles changed after construction")
	}
	if !p.Claims().Contains("email") || p.Claims().Contains("injected") {
		t.Error("principal claims changed after construction")
	}
	if p.ID() != "42" || p.Username() != "alice" || p.ID().String() != "42" {
		t.Errorf("principal = %q/%q", p.ID(), p.Username())
	}

	back := p.Data()
	if back.ID != "42" || !back.Roles.Contains("admin") {
		t.Errorf("Data() = %+v", back)
	}
}

func TestNewUserID(t *testing.T) {
	a, b := NewUserID(), NewUserID()
	if a == "" || a == b {
		t.Errorf("NewUserID() = %q, %q; want distinct non-empty ids", a, b)
	}
}

func TestRoles(t *testing.T) {
	var r Roles
	if r.Contains("x") || r.Len() != 0 {
		t.Error("zero Roles should be empty")
	}
	r.Add("b")
	r.Add("a")
	r.Add("b")
	if got := r.Values(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Values() = %q, want [a b]", got)
	}
	r.Remove("a")
	if r.Contains("a") || r.Len() != 1 {
		t.Errorf("after Remove: %q", r.Values())
	}

	data, err := json.Marshal(NewRoles("z", "y"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `["y","z"]` {
		t.Errorf("json = %s, want [\"y\",\"z\"]", data)
	}
	var decoded Roles
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !decoded.Contains("y") || !decoded.Contains("z") {
		t.Errorf("decoded = %q", decoded.Values())
	}
	if err := json.Unmarshal([]byte(`[1]`), &decoded); err == nil {
		t.Error("expected error for non-string role")
	}
}

func TestClaims(t *testing.T) {
	var c Claims
	if c.Contains("a") || c.Len() != 0 {
		t.Error("zero Claims should be empty")
	}
	c.Add("name", StringClaim("alice"))
	c.Add("admin", BoolClaim(true))
	c.Add("age", IntClaim(30))
	c.Add("score", FloatClaim(1.5))
	c.Add("tags", ArrayClaim(StringClaim("a"), IntClaim(2)))
	c.Add("addr", ObjectClaim(map[string]ClaimValue{"city": StringClaim("Berlin")}))

	if got := c.Names(); !reflect.DeepEqual(got, []string{"addr", "admin", "age", "name", "score", "tags"}) {
		t.Errorf("Names() = %q", got)
	}

	v, ok := c.Get("age")
	if !ok || v.Kind() != ClaimInt {
		t.Fatalf("age = %v, %v", v, ok)
	}
	if n, _ := v.AsInt(); n != 30 {
		t.Errorf("age = %d", n)
	}
	if s, ok := v.Text(); !ok || s != "30" {
		t.Errorf("Text() = %q, %v", s, ok)
	}
	if f, ok := v.AsFloat(); !ok || f != 30 {
		t.Errorf("AsFloat() on int = %v, %v", f, ok)
	}
	if _, ok := v.AsString(); ok {
		t.Error("AsString() on int should fail")
	}

	c.Remove("age")
	if c.Contains("age") {
		t.Error("age still present after Remove")
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Claims
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(decoded.Map(), c.Map()) {
		t.Errorf("decoded = %v, want %v", decoded.Map(), c.Map())
	}
	if v, _ := decoded.Get("admin"); v.Kind() != ClaimBool {
		t.Errorf("admin kind = %v after JSON, want bool", v.Kind())
	}
	if v, _ := decoded.Get("score"); v.Kind() != ClaimFloat {
		t.Errorf("score kind = %v after JSON, want float", v.Kind())
	}
}

func TestClaimsCloneIsDeep(t *testing.T) {
	var c Claims
	c.Add("tags", ArrayClaim(StringClaim("a")))
	clone := c.Clone()
	clone.Add("tags", ArrayClaim())
	clone.Add("new", StringClaim("x"))

	v, _ := c.Get("tags")
	if arr, _ := v.AsArray(); len(arr) != 1 {
		t.Errorf("original tags changed: %v", v.Any())
	}
	if c.Contains("new") {
		t.Error("original gained a claim through its clone")
	}
}

func TestClaimFromAny(t *testing.T) {
	tests := []struct {
		in   any
		kind ClaimKind
	}{
		{nil, ClaimNull},
		{"s", ClaimString},
		{true, ClaimBool},
		{7, ClaimInt},
		{int64(7), ClaimInt},
		{7.5, ClaimFloat},
		{json.Number("12"), ClaimInt},
		{json.Number("1.25"), ClaimFloat},
		{[]string{"a"}, ClaimArray},
		{[]any{"a", 1.0}, ClaimArray},
		{map[string]any{"k": "v"}, ClaimObject},
	}
	for _, tt := range tests {
		v, err := ClaimFromAny(tt.in)
		if err != nil {
			t.Errorf("ClaimFromAny(%v): %v", tt.in, err)
			continue
		}
		if v.Kind() != tt.kind {
			t.Errorf("ClaimFromAny(%v).Kind() = %v, want %v", tt.in, v.Kind(), tt.kind)
		}
	}

	if _, err := ClaimFromAny(struct{}{}); err == nil {
		t.Error("expected error for unsupported type")
	}
	if _, err := ClaimFromAny([]any{make(chan int)}); err == nil {
		t.Error("expected error for unsupported nested type")
	}
}
