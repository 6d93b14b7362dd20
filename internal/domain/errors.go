package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound matches a ResolutionError of kind NotFound with errors.Is.
var ErrNotFound = errors.New("channel not found")

// SigningError reports malformed signing inputs or credentials.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string { return "signing: " + e.Reason }

// ConnectionError reports a signaling handshake failure.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports an unparseable frame, an unknown action, or a
// status response from the signaling service.
type ProtocolError struct {
	Frame  string
	Status *StatusResponse
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Status != nil {
		return fmt.Sprintf("protocol: status %s %s: %s", e.Status.StatusCode, e.Status.ErrorType, e.Status.Description)
	}
	return fmt.Sprintf("protocol: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// StateError reports an out-of-order or duplicate negotiation step, or a
// negotiation deadline that expired.
type StateError struct {
	State   string
	Action  Action
	Reason  string
	timeout bool
}

// NewTimeoutError returns a StateError for an expired negotiation deadline.
func NewTimeoutError(state, reason string) *StateError {
	return &StateError{State: state, Reason: reason, timeout: true}
}

func (e *StateError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("state %s: %s: %s", e.State, e.Action, e.Reason)
	}
	return fmt.Sprintf("state %s: %s", e.State, e.Reason)
}

// Timeout reports whether the error was caused by an expired deadline.
func (e *StateError) Timeout() bool { return e.timeout }

// ResolutionKind classifies channel resolution failures.
type ResolutionKind int

const (
	ResolutionOther ResolutionKind = iota
	ResolutionNotFound
)

// ResolutionError reports a channel lookup, creation, endpoint or relay
// credential failure.
type ResolutionError struct {
	Kind    ResolutionKind
	Channel string
	Op      string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Kind == ResolutionNotFound {
		return fmt.Sprintf("%s %s: channel doesn't exist", e.Op, e.Channel)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Channel, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == ResolutionNotFound
}
