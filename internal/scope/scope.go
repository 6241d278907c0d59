// Package scope defines the trust levels used to gate access to event types.
//
// A resource is only visible to actors holding a scope at least as broad as
// its own. Scopes are totally ordered by rank:
//
//	SCOPE_PUBLIC < SCOPE_FEDERATED < SCOPE_PRIVATE < SCOPE_ROOT
package scope

import (
	"fmt"
	"strings"
)

// Scope is a ranked trust level.
type Scope int

const (
	// Public is the narrowest scope. It only gives access to resources that
	// may be visible by untrusted remote actors.
	Public Scope = iota
	// Federated gives access to all public resources, including those shared
	// with other trusted servers.
	Federated
	// Private gives access to public and sensitive resources. It should only
	// be given to trusted local actors.
	Private
	// Root gives access to all resources.
	Root
)

var names = [...]string{
	Public:    "SCOPE_PUBLIC",
	Federated: "SCOPE_FEDERATED",
	Private:   "SCOPE_PRIVATE",
	Root:      "SCOPE_ROOT",
}

// All returns every scope in ascending rank order.
func All() []Scope {
	return []Scope{Public, Federated, Private, Root}
}

// Valid reports whether s is one of the four defined scopes.
func (s Scope) Valid() bool {
	return s >= Public && s <= Root
}

// String returns the scope name, e.g. "SCOPE_PRIVATE".
func (s Scope) String() string {
	if !s.Valid() {
		return fmt.Sprintf("SCOPE(%d)", int(s))
	}
	return names[s]
}

// Compare returns -1 if a ranks below b, 0 if they are equal and +1 if a
// ranks above b.
func Compare(a, b Scope) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Dominates reports whether an actor holding s may act on a resource at
// scope required.
func (s Scope) Dominates(required Scope) bool {
	return Compare(s, required) >= 0
}

// Parse parses a scope name. It accepts the full name ("SCOPE_PUBLIC") or the
// short form ("public"), case-insensitively.
func Parse(name string) (Scope, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "SCOPE_")
	for _, s := range All() {
		if strings.TrimPrefix(names[s], "SCOPE_") == n {
			return s, nil
		}
	}
	return Public, fmt.Errorf("unknown scope %q", name)
}

// MarshalText implements encoding.TextMarshaler. JSON and YAML use it too.
func (s Scope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
