// Package errs provides the error-kind taxonomy shared across the node:
// every boundary (network reader, orchestrator, storage layer) can
// switch on Kind instead of matching error strings.
package errs

import "fmt"

// Kind classifies where in the stack an error originated.
type Kind int

const (
	// Format covers malformed wire data: bad JSON, truncated frames,
	// fields out of range.
	Format Kind = iota
	// Crypto covers signature, hash, or key-encoding failures.
	Crypto
	// Script covers script interpreter failures (§4.4): unknown opcode,
	// stack underflow, non-clean stack on verify.
	Script
	// Rules covers consensus rule violations (§4.10-§4.13): bad
	// difficulty, double-spend, subsidy mismatch.
	Rules
	// Chain covers block-store/orchestrator state-machine outcomes
	// (§4.14-§4.15): orphan, weak fork, genesis conflict.
	Chain
	// Storage covers the KV layer: open/read/write/close failures.
	Storage
	// Network covers p2p transport and peer-protocol failures.
	Network
	// Config covers flag/file configuration errors.
	Config
)

func (k Kind) String() string {
	switch k {
	case Format:
		return "format"
	case Crypto:
		return "crypto"
	case Script:
		return "script"
	case Rules:
		return "rules"
	case Chain:
		return "chain"
	case Storage:
		return "storage"
	case Network:
		return "network"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a single error type carrying a Kind, a message, and an
// optional wrapped cause. Components switch on Kind at a boundary
// instead of matching message strings; equality against a specific
// sentinel still works via errors.Is/errors.As.
type Error struct {
	Kind  Kind
	Msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error with the same Kind and Msg,
// so sentinel values defined with New compare equal through
// errors.Is even when wrapped by fmt.Errorf("...: %w", err).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Msg == t.Msg
}

// New creates a sentinel-style *Error with no wrapped cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates an *Error of the given kind that wraps cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, cause: cause}
}
