package apperr

import (
	"errors"
	"testing"
)

func TestErrorsWrapUnderlyingCause(t *testing.T) {
	cause := errors.New("boom")
	cases := []error{
		NewConfigError("bad config", cause),
		NewTransportError("dial failed", cause),
		NewAuthError("login failed", cause),
		NewProtocolError("unexpected body", cause),
		NewStateError("invariant broken", cause),
	}
	for _, err := range cases {
		if !errors.Is(err, cause) {
			t.Errorf("%T: expected errors.Is to find wrapped cause", err)
		}
		if err.Error() == "" {
			t.Errorf("%T: empty error string", err)
		}
	}
}

func TestErrorsAsMatchesConcreteType(t *testing.T) {
	err := NewAuthError("session expired", nil)

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatal("expected errors.As to match *AuthError")
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		t.Fatal("did not expect *AuthError to match *TransportError")
	}
}

func TestErrCircuitOpenIsATransportError(t *testing.T) {
	var transportErr *TransportError
	if !errors.As(ErrCircuitOpen, &transportErr) {
		t.Fatal("ErrCircuitOpen should be a *TransportError")
	}
}

func TestErrorWithoutCauseStillFormats(t *testing.T) {
	err := NewConfigError("missing field", nil)
	if err.Error() != "config error: missing field" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
