package models

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
)

// Role is a single named permission.
type Role string

const (
	RoleAdmin      Role = "Admin"
	RoleStudent    Role = "Student"
	RoleInstructor Role = "Instructor"
)

// Roles lists every known role in canonical order.
var Roles = []Role{RoleAdmin, RoleStudent, RoleInstructor}

// roleDelimiter separates tokens in the persisted form of a RoleSet.
const roleDelimiter = ","

// ParseRole matches s against the known role names, ignoring case and
// surrounding blanks, and returns the canonical Role.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%q: %w", s, common.ErrInvalidRole)
}

func (r Role) String() string { return string(r) }

func (r Role) bit() RoleSet {
	for i, known := range Roles {
		if known == r {
			return 1 << i
		}
	}
	return 0
}

// RoleSet is a set of roles stored as a bitmask. The zero value is the empty
// set. Values are immutable; every mutating method returns a new set.
type RoleSet uint8

// NewRoleSet builds a set from roles. Unknown roles are ignored.
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s |= r.bit()
	}
	return s
}

// ParseRoleSet decodes the persisted delimited form. Tokens must match a
// canonical role name exactly; membership is never decided by substring.
func ParseRoleSet(s string) (RoleSet, error) {
	var set RoleSet
	for _, tok := range strings.Split(s, roleDelimiter) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		bit := Role(tok).bit()
		if bit == 0 {
			return 0, fmt.Errorf("role token %q: %w", tok, common.ErrInvalidRole)
		}
		set |= bit
	}
	return set, nil
}

func (s RoleSet) Add(r Role) RoleSet { return s | r.bit() }
func (s RoleSet) Remove(r Role) RoleSet { return s &^ r.bit() }
func (s RoleSet) Union(o RoleSet) RoleSet { return s | o }
func (s RoleSet) Difference(o RoleSet) RoleSet { return s &^ o }
func (s RoleSet) IsEmpty() bool { return s == 0 }
func (s RoleSet) Len() int { return bits.OnesCount8(uint8(s)) }

// Has reports whether r is a member of s.
func (s RoleSet) Has(r Role) bool {
	b := r.bit()
	return b != 0 && s&b == b
}

// Slice returns the members in canonical order.
func (s RoleSet) Slice() []Role {
	out := make([]Role, 0, s.Len())
	for _, r := range Roles {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}

// String returns the canonical persisted form, e.g. "Admin,Instructor".
func (s RoleSet) String() string {
	roles := s.Slice()
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, roleDelimiter)
}
