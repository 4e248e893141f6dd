package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotConnected is returned when operation requires a live connection
	ErrNotConnected = errors.New("not connected to Telegram")

	// ErrNotAuthorized is returned when a stored session has no authorization
	ErrNotAuthorized = errors.New("session is not authorized")
)

// ErrorKind is the closed set of protocol failure classes the core reacts to
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindFloodWait
	KindPeerFlood
	KindSessionRevoked
	KindDestination
	KindInvalidPhone
	KindInvalidCode
	KindCodeExpired
	KindPasswordRequired
	KindInvalidPassword
	KindNetwork
)

var kindNames = map[ErrorKind]string{
	KindUnknown:          "unknown",
	KindFloodWait:        "flood_wait",
	KindPeerFlood:        "peer_flood",
	KindSessionRevoked:   "session_revoked",
	KindDestination:      "destination",
	KindInvalidPhone:     "invalid_phone",
	KindInvalidCode:      "invalid_code",
	KindCodeExpired:      "code_expired",
	KindPasswordRequired: "password_required",
	KindInvalidPassword:  "invalid_password",
	KindNetwork:          "network",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ProtocolError is produced once at the protocol adapter boundary.
// Code keeps the raw RPC error type for logging only.
type ProtocolError struct {
	Kind ErrorKind
	Wait time.Duration
	Code string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Kind == KindFloodWait {
		return fmt.Sprintf("%s (%s): wait %s: %v", e.Kind, e.Code, e.Wait, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError wraps err with the given kind
func NewProtocolError(kind ErrorKind, code string, err error) *ProtocolError {
	return &ProtocolError{Kind: kind, Code: code, Err: err}
}

// NewFloodWaitError creates a flood-wait error carrying the remote wait duration
func NewFloodWaitError(wait time.Duration, code string, err error) *ProtocolError {
	return &ProtocolError{Kind: KindFloodWait, Wait: wait, Code: code, Err: err}
}

// KindOf returns the classified kind of err, KindUnknown when err was not classified
func KindOf(err error) ErrorKind {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// FloodWaitOf returns the remote wait duration if err is a flood-wait
func FloodWaitOf(err error) (time.Duration, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.Kind == KindFloodWait {
		return pe.Wait, true
	}
	return 0, false
}

// IsSessionRevoked reports whether err means the account must be re-linked
func IsSessionRevoked(err error) bool {
	return KindOf(err) == KindSessionRevoked
}
