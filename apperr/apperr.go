// Package apperr defines the error taxonomy shared by every component:
// config, transport, auth, protocol and state errors, each wrapping an
// underlying cause and supporting errors.As/errors.Is.
package apperr

import "fmt"

// ConfigError indicates a non-recoverable configuration problem, surfaced at startup.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error: %s: %v", e.Msg, e.Err)
	}
	return "config error: " + e.Msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(msg string, err error) error {
	return &ConfigError{Msg: msg, Err: err}
}

// TransportError indicates a network, timeout, or 5xx failure talking to the remote client.
type TransportError struct {
	Msg string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error: %s: %v", e.Msg, e.Err)
	}
	return "transport error: " + e.Msg
}

func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(msg string, err error) error {
	return &TransportError{Msg: msg, Err: err}
}

// ErrCircuitOpen is returned by the remote-client adapter while its circuit breaker is open.
var ErrCircuitOpen = &TransportError{Msg: "circuit breaker open"}

// AuthError indicates a login/session failure. The adapter attempts exactly one re-login before surfacing this.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Msg, e.Err)
	}
	return "auth error: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

func NewAuthError(msg string, err error) error {
	return &AuthError{Msg: msg, Err: err}
}

// ProtocolError indicates the remote client returned an unexpected response shape.
type ProtocolError struct {
	Msg string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Msg, e.Err)
	}
	return "protocol error: " + e.Msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func NewProtocolError(msg string, err error) error {
	return &ProtocolError{Msg: msg, Err: err}
}

// StateError indicates an invariant violation detected mid-cycle; the engine returns to IDLE without committing.
type StateError struct {
	Msg string
	Err error
}

func (e *StateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state error: %s: %v", e.Msg, e.Err)
	}
	return "state error: " + e.Msg
}

func (e *StateError) Unwrap() error { return e.Err }

func NewStateError(msg string, err error) error {
	return &StateError{Msg: msg, Err: err}
}

// WriteError reports that a batched write attempted every group but some
// hashes' batches failed. Callers should treat the hashes absent from
// Failed as successfully written.
type WriteError struct {
	Failed map[string]error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: %d hash(es) failed", len(e.Failed))
}

// NewWriteError returns nil if failed is empty, so callers can always check
// the returned error for nil regardless of whether any batch failed.
func NewWriteError(failed map[string]error) error {
	if len(failed) == 0 {
		return nil
	}
	return &WriteError{Failed: failed}
}
