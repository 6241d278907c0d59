// Package registry maps event type names to the scope required to use them.
package registry

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/scope"
)

// Registry is a concurrent map from event type to scope.
// A type is registered at most once at any time; Register is insert-if-absent.
type Registry struct {
	types sync.Map // string -> scope.Scope
	count atomic.Int64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register records eventType at s. If the type is already registered it
// returns an error wrapping event.ErrAlreadyRegistered. When several callers
// race on the same type exactly one succeeds.
func (r *Registry) Register(eventType string, s scope.Scope) error {
	if _, loaded := r.types.LoadOrStore(eventType, s); loaded {
		return event.AlreadyRegistered(eventType)
	}
	r.count.Add(1)
	return nil
}

// Unregister removes eventType. It is a no-op when the type is unknown.
func (r *Registry) Unregister(eventType string) {
	if _, loaded := r.types.LoadAndDelete(eventType); loaded {
		r.count.Add(-1)
	}
}

// ScopeOf returns the scope of eventType, or an error wrapping
// event.ErrNotRegistered.
func (r *Registry) ScopeOf(eventType string) (scope.Scope, error) {
	v, ok := r.types.Load(eventType)
	if !ok {
		return 0, event.NotRegistered(eventType)
	}
	return v.(scope.Scope), nil
}

// IsRegistered reports whether eventType is registered.
func (r *Registry) IsRegistered(eventType string) bool {
	_, ok := r.types.Load(eventType)
	return ok
}

// Types returns the registered type names in sorted order.
func (r *Registry) Types() []string {
	var out []string
	r.types.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

// Entries returns a snapshot of every registration.
func (r *Registry) Entries() map[string]scope.Scope {
	out := make(map[string]scope.Scope)
	r.types.Range(func(k, v any) bool {
		out[k.(string)] = v.(scope.Scope)
		return true
	})
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	return int(r.count.Load())
}
