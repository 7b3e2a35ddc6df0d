package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// ClaimKind identifies the variant held by a ClaimValue.
type ClaimKind int

const (
	ClaimNull ClaimKind = iota
	ClaimString
	ClaimBool
	ClaimInt
	ClaimFloat
	ClaimArray
	ClaimObject
)

func (k ClaimKind) String() string {
	switch k {
	case ClaimString:
		return "string"
	case ClaimBool:
		return "bool"
	case ClaimInt:
		return "int"
	case ClaimFloat:
		return "float"
	case ClaimArray:
		return "array"
	case ClaimObject:
		return "object"
	default:
		return "null"
	}
}

// ClaimValue is a typed claim value: a string, bool, int, float, array of
// values, or nested object.
type ClaimValue struct {
	kind ClaimKind
	str  string
	b    bool
	i    int64
	f    float64
	arr  []ClaimValue
	obj  map[string]ClaimValue
}

func StringClaim(s string) ClaimValue { return ClaimValue{kind: ClaimString, str: s} }
func BoolClaim(b bool) ClaimValue { return ClaimValue{kind: ClaimBool, b: b} }
func IntClaim(i int64) ClaimValue { return ClaimValue{kind: ClaimInt, i: i} }
func FloatClaim(f float64) ClaimValue { return ClaimValue{kind: ClaimFloat, f: f} }

// ArrayClaim returns an array claim holding a copy of values.
func ArrayClaim(values ...ClaimValue) ClaimValue {
	arr := make([]ClaimValue, len(values))
	for i, v := range values {
		arr[i] = v.clone()
	}
	return ClaimValue{kind: ClaimArray, arr: arr}
}

// ObjectClaim returns an object claim holding a copy of fields.
func ObjectClaim(fields map[string]ClaimValue) ClaimValue {
	obj := make(map[string]ClaimValue, len(fields))
	for k, v := range fields {
		obj[k] = v.clone()
	}
	return ClaimValue{kind: ClaimObject, obj: obj}
}

// Kind returns the variant of v.
func (v ClaimValue) Kind() ClaimKind { return v.kind }

// AsString returns the string value if v is a string claim.
func (v ClaimValue) AsString() (string, bool) { return v.str, v.kind == ClaimString }

// AsBool returns the bool value if v is a bool claim.
func (v ClaimValue) AsBool() (bool, bool) { return v.b, v.kind == ClaimBool }

// AsInt returns the integer value if v is an int claim.
func (v ClaimValue) AsInt() (int64, bool) { return v.i, v.kind == ClaimInt }

// AsFloat returns the float value if v is a float or int claim.
func (v ClaimValue) AsFloat() (float64, bool) {
	switch v.kind {
	case ClaimFloat:
		return v.f, true
	case ClaimInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsArray returns a copy of the elements if v is an array claim.
func (v ClaimValue) AsArray() ([]ClaimValue, bool) {
	if v.kind != ClaimArray {
		return nil, false
	}
	return ArrayClaim(v.arr...).arr, true
}

// AsObject returns a copy of the fields if v is an object claim.
func (v ClaimValue) AsObject() (map[string]ClaimValue, bool) {
	if v.kind != ClaimObject {
		return nil, false
	}
	return ObjectClaim(v.obj).obj, true
}

// Text converts scalar claims to their string form. Arrays and objects are
// not convertible.
func (v ClaimValue) Text() (string, bool) {
	switch v.kind {
	case ClaimString:
		return v.str, true
	case ClaimBool:
		return strconv.FormatBool(v.b), true
	case ClaimInt:
		return strconv.FormatInt(v.i, 10), true
	case ClaimFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	}
	return "", false
}

// Any converts v into plain Go values suitable for encoding/json.
func (v ClaimValue) Any() any {
	switch v.kind {
	case ClaimString:
		return v.str
	case ClaimBool:
		return v.b
	case ClaimInt:
		return v.i
	case ClaimFloat:
		return v.f
	case ClaimArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Any()
		}
		return out
	case ClaimObject:
		out := make(map[string]any, len(v.obj))
		for k, e := range v.obj {
			out[k] = e.Any()
		}
		return out
	}
	return nil
}

func (v ClaimValue) clone() ClaimValue {
	switch v.kind {
	case ClaimArray:
		return ArrayClaim(v.arr...)
	case ClaimObject:
		return ObjectClaim(v.obj)
	}
	return v
}

// ClaimFromAny converts a decoded JSON value into a ClaimValue. Numbers may
// be float64, json.Number or any Go integer type.
func ClaimFromAny(x any) (ClaimValue, error) {
	switch t := x.(type) {
	case nil:
		return ClaimValue{}, nil
	case ClaimValue:
		return t.clone(), nil
	case string:
		return StringClaim(t), nil
	case bool:
		return BoolClaim(t), nil
	case int:
		return IntClaim(int64(t)), nil
	case int32:
		return IntClaim(int64(t)), nil
	case int64:
		return IntClaim(t), nil
	case float32:
		return FloatClaim(float64(t)), nil
	case float64:
		return FloatClaim(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return IntClaim(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return ClaimValue{}, fmt.Errorf("invalid number %q: %w", t, err)
		}
		return FloatClaim(f), nil
	case []string:
		arr := make([]ClaimValue, len(t))
		for i, s := range t {
			arr[i] = StringClaim(s)
		}
		return ClaimValue{kind: ClaimArray, arr: arr}, nil
	case []any:
		arr := make([]ClaimValue, len(t))
		for i, e := range t {
			cv, err := ClaimFromAny(e)
			if err != nil {
				return ClaimValue{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = cv
		}
		return ClaimValue{kind: ClaimArray, arr: arr}, nil
	case map[string]any:
		obj := make(map[string]ClaimValue, len(t))
		for k, e := range t {
			cv, err := ClaimFromAny(e)
			if err != nil {
				return ClaimValue{}, fmt.Errorf("field %q: %w", k, err)
			}
			obj[k] = cv
		}
		return ClaimValue{kind: ClaimObject, obj: obj}, nil
	}
	return ClaimValue{}, fmt.Errorf("unsupported claim value type %T", x)
}

// MarshalJSON implements json.Marshaler.
func (v ClaimValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler. Integral numbers decode as int
// claims, everything else numeric as float claims.
func (v *ClaimValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	cv, err := ClaimFromAny(raw)
	if err != nil {
		return err
	}
	*v = cv
	return nil
}

// Claims maps claim names to values. The zero value is an empty set of
// claims ready for use.
type Claims struct {
	m map[string]ClaimValue
}

// Add sets claim name to value, replacing any previous value.
func (c *Claims) Add(name string, value ClaimValue) {
	if c.m == nil {
		c.m = make(map[string]ClaimValue)
	}
	c.m[name] = value.clone()
}

// Remove deletes claim name.
func (c *Claims) Remove(name string) {
	delete(c.m, name)
}

// Get returns the claim called name.
func (c Claims) Get(name string) (ClaimValue, bool) {
	v, ok := c.m[name]
	if !ok {
		return ClaimValue{}, false
	}
	return v.clone(), true
}

// Contains reports whether claim name is present.
func (c Claims) Contains(name string) bool {
	_, ok := c.m[name]
	return ok
}

// Len returns the number of claims.
func (c Claims) Len() int { return len(c.m) }

// Names returns the claim names in sorted order.
func (c Claims) Names() []string {
	names := make([]string, 0, len(c.m))
	for k := range c.m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of c.
func (c Claims) Clone() Claims {
	if c.m == nil {
		return Claims{}
	}
	out := Claims{m: make(map[string]ClaimValue, len(c.m))}
	for k, v := range c.m {
		out.m[k] = v.clone()
	}
	return out
}

// Map converts the claims into plain Go values.
func (c Claims) Map() map[string]any {
	out := make(map[string]any, len(c.m))
	for k, v := range c.m {
		out[k] = v.Any()
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (c Claims) MarshalJSON() ([]byte, error) {
	if c.m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Claims) UnmarshalJSON(data []byte) error {
	var m map[string]ClaimValue
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	c.m = m
	return nil
}
