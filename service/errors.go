package service

import (
	"github.com/go-errors/errors"

	"github.com/radworks/radicle-node/rwire"
)

// SessionErrorKind is the taxonomy of spec.md §7's SessionError.
type SessionErrorKind int

const (
	// ErrNotFound: message for an unknown peer; log and drop, no
	// disconnect (there is no session to disconnect).
	ErrNotFound SessionErrorKind = iota
	// ErrWrongMagic: envelope belongs to another network; disconnect.
	ErrWrongMagic
	// ErrWrongVersion: protocol mismatch; disconnect.
	ErrWrongVersion
	// ErrMisbehavior: state-machine violation (pre-handshake message,
	// redundant handshake, invalid signature); disconnect.
	ErrMisbehavior
	// ErrInvalidTimestamp: beyond MaxTimeDelta; drop the message, not the
	// session.
	ErrInvalidTimestamp
)

func (k SessionErrorKind) String() string {
	switch k {
	case ErrNotFound:
		return "not found"
	case ErrWrongMagic:
		return "wrong magic"
	case ErrWrongVersion:
		return "wrong version"
	case ErrMisbehavior:
		return "misbehavior"
	case ErrInvalidTimestamp:
		return "invalid timestamp"
	default:
		return "unknown"
	}
}

// SessionError is the error carried on a Disconnect directive, or logged
// and dropped for kinds that don't sever the session.
type SessionError struct {
	Kind   SessionErrorKind
	Magic  rwire.Magic
	Detail string
}

func (e *SessionError) Error() string {
	switch e.Kind {
	case ErrWrongMagic:
		return errors.Errorf("session: wrong magic 0x%08x", uint32(e.Magic)).Error()
	case ErrNotFound:
		return errors.New("session: not found").Error()
	default:
		if e.Detail != "" {
			return errors.Errorf("session: %v: %s", e.Kind, e.Detail).Error()
		}
		return errors.Errorf("session: %v", e.Kind).Error()
	}
}

// Disconnects reports whether a SessionError of this kind severs the
// session, as opposed to being logged/dropped locally (spec.md §7).
func (k SessionErrorKind) Disconnects() bool {
	switch k {
	case ErrWrongMagic, ErrWrongVersion, ErrMisbehavior:
		return true
	default:
		return false
	}
}
