package event

import (
	"errors"
	"fmt"

	"github.com/telnet2/eventrouter/internal/scope"
)

// Sentinel errors shared by the registry, the subscribers and the router.
var (
	// ErrNotRegistered is returned when an operation references an unknown event type.
	ErrNotRegistered = errors.New("event type is not registered")

	// ErrAlreadyRegistered is returned on a duplicate registration.
	ErrAlreadyRegistered = errors.New("event type is already registered")

	// ErrInsufficientScope is returned when an actor's scope ranks below the required one.
	ErrInsufficientScope = errors.New("insufficient scope")

	// ErrShutdownTimeout is returned when a bounded drain exceeds its deadline.
	ErrShutdownTimeout = errors.New("shutdown timeout exceeded")

	// ErrClosed is returned by operations on a router that is shutting down or closed.
	ErrClosed = errors.New("event router is closed")
)

// TypeError ties a registry failure to the event type that caused it.
type TypeError struct {
	Type string
	Err  error
}

func (e *TypeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNotRegistered):
		return fmt.Sprintf("type '%s' is not registered", e.Type)
	case errors.Is(e.Err, ErrAlreadyRegistered):
		return fmt.Sprintf("type '%s' is already registered", e.Type)
	default:
		return fmt.Sprintf("type '%s': %v", e.Type, e.Err)
	}
}

// Unwrap returns the underlying sentinel.
func (e *TypeError) Unwrap() error {
	return e.Err
}

// NotRegistered returns a TypeError wrapping ErrNotRegistered.
func NotRegistered(eventType string) error {
	return &TypeError{Type: eventType, Err: ErrNotRegistered}
}

// AlreadyRegistered returns a TypeError wrapping ErrAlreadyRegistered.
func AlreadyRegistered(eventType string) error {
	return &TypeError{Type: eventType, Err: ErrAlreadyRegistered}
}

// ScopeCause tells which party was not trusted enough.
type ScopeCause int

const (
	// CauseActor means the registrant, requester or subscriber was too narrow.
	CauseActor ScopeCause = iota
	// CauseRouter means the router itself cannot host the requested scope.
	CauseRouter
)

func (c ScopeCause) String() string {
	if c == CauseRouter {
		return "router"
	}
	return "actor"
}

// ScopeError is returned when a scope check fails.
// errors.Is(err, ErrInsufficientScope) holds for every ScopeError.
type ScopeError struct {
	// Op is the attempted operation, e.g. "register" or "subscribe to".
	Op string

	// Type is the event type the operation targeted.
	Type string

	// Actor is the scope that was checked. For CauseRouter it is the router's scope.
	Actor scope.Scope

	// Required is the scope the actor needed to dominate.
	Required scope.Scope

	Cause ScopeCause
}

func (e *ScopeError) Error() string {
	if e.Cause == CauseRouter {
		return fmt.Sprintf("invalid scope for this router: type '%s' requires %s, router is %s",
			e.Type, e.Required, e.Actor)
	}
	return fmt.Sprintf("insufficient scope to %s event type '%s': have %s, need %s",
		e.Op, e.Type, e.Actor, e.Required)
}

// Is allows errors.Is to match ScopeError with ErrInsufficientScope.
func (e *ScopeError) Is(target error) bool {
	return target == ErrInsufficientScope
}
