// Package perr defines the typed error kinds shared by every transport
// session in mojop2p. Session failures (open, probe, punch, connect,
// validate) wrap the cause in a *Error carrying one of the Kinds below,
// so callers (and GatewayServer's telemetry) can dispatch on failure kind
// without string matching. A few socket-level helpers (stunt's
// HandleStuntRequest and AcceptPassthrough, turn's SendInvite) return the
// underlying error unwrapped.
package perr

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a session failure.
type Kind string

const (
	// PseudoTcp
	OpenTimeout     Kind = "OpenTimeout"
	IdleTimeout     Kind = "IdleTimeout"
	PeerUnreachable Kind = "PeerUnreachable"

	// Stun / Stunt
	NoMapping             Kind = "NoMapping"
	PredictionUnavailable Kind = "PredictionUnavailable"
	ValidationFailure     Kind = "ValidationFailure"
	ValidationPartial     Kind = "ValidationPartial"

	// SocketConnector
	AllAddressesFailed Kind = "AllAddressesFailed"

	// Turn
	NoProxyCandidate Kind = "NoProxyCandidate"
	ProxyRefused     Kind = "ProxyRefused"

	// Gateway
	AuthRequired   Kind = "AuthRequired"
	AuthExhausted  Kind = "AuthExhausted"
	UpstreamClosed Kind = "UpstreamClosed"
	BadResponse    Kind = "BadResponse"

	// Any session after abort()
	Canceled Kind = "Canceled"
)

// Error pairs a Kind with the underlying cause. It is the error shape a
// session's failures are reported in.
type Error struct {
	Kind Kind
	Err  error
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, perr.KindError(perr.Canceled)) work by comparing
// kinds when the target is itself a *Error, such as a Kind wrapped with
// KindError.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Sentinel, used only for errors.Is(err, perr.KindError(perr.Canceled)) style checks.
func KindError(k Kind) error {
	return &Error{Kind: k}
}
