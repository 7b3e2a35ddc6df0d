package auth

import (
	"encoding/json"
	"sort"
)

// Roles is a set of role names. The zero value is an empty set ready for use.
type Roles struct {
	set map[string]struct{}
}

// NewRoles returns a set holding the given roles.
func NewRoles(roles ...string) Roles {
	var r Roles
	for _, role := range roles {
		r.Add(role)
	}
	return r
}

// Add inserts role into the set.
func (r *Roles) Add(role string) {
	if r.set == nil {
		r.set = make(map[string]struct{})
	}
	r.set[role] = struct{}{}
}

// Remove deletes role from the set.
func (r *Roles) Remove(role string) {
	delete(r.set, role)
}

// Contains reports whether role is in the set.
func (r Roles) Contains(role string) bool {
	_, ok := r.set[role]
	return ok
}

// Len returns the number of roles.
func (r Roles) Len() int { return len(r.set) }

// Values returns the roles in sorted order.
func (r Roles) Values() []string {
	out := make([]string, 0, len(r.set))
	for role := range r.set {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Clone returns a copy of r.
func (r Roles) Clone() Roles {
	return NewRoles(r.Values()...)
}

// MarshalJSON encodes the set as a sorted JSON array.
func (r Roles) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Values())
}

// UnmarshalJSON decodes a JSON array of strings.
func (r *Roles) UnmarshalJSON(data []byte) error {
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return err
	}
	*r = NewRoles(roles...)
	return nil
}
