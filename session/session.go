// Package session implements the per-peer session state machine described
// in spec.md §3: Initial -> Negotiated -> Disconnected, plus the address
// book of live sessions keyed by remote socket address.
package session

import (
	"net"
	"time"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
)

// Link records whether a session was dialed by us or accepted from a peer.
type Link int

const (
	Outbound Link = iota
	Inbound
)

func (l Link) String() string {
	if l == Outbound {
		return "outbound"
	}
	return "inbound"
}

// State is the sum type over a session's lifecycle, mirroring spec.md §3's
// SessionState.
type State int

const (
	// Initial: connected transport, handshake not yet completed.
	Initial State = iota
	// Negotiated: peer identified itself with a valid Initialize.
	Negotiated
	// Disconnected: terminal until a new connection attempt.
	Disconnected
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Negotiated:
		return "negotiated"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// NegotiatedInfo is populated the moment a session transitions to
// Negotiated.
type NegotiatedInfo struct {
	ID    radcrypto.NodeID
	Since time.Time
	Addrs []rwire.Address
	Git   rwire.GitURL
}

// DisconnectReason classifies why a session became Disconnected, used to
// decide whether a persistent peer should be redialed (spec.md §7).
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	// ReasonTransient covers remote-initiated closes and I/O errors that
	// carry no implication of misbehavior.
	ReasonTransient
	// ReasonDialFailed means the outbound connection attempt itself
	// never established a transport.
	ReasonDialFailed
	// ReasonProtocolError means the core severed the session because of
	// a SessionError (wrong magic/version, misbehavior).
	ReasonProtocolError
)

// DisconnectedInfo is populated the moment a session transitions to
// Disconnected.
type DisconnectedInfo struct {
	Since  time.Time
	Reason DisconnectReason
}

// Session is the per-peer record tracked while a transport connection is
// live or was recently live.
type Session struct {
	Addr       net.Addr
	Link       Link
	Persistent bool
	Attempts   int
	Filter     *rwire.ProjectFilter
	State      State
	Negotiated NegotiatedInfo
	Disconn    DisconnectedInfo
}

// New creates a session in the Initial state for a freshly connected
// transport.
func New(addr net.Addr, link Link, persistent bool) *Session {
	return &Session{
		Addr:       addr,
		Link:       link,
		Persistent: persistent,
		State:      Initial,
	}
}

// Negotiate transitions the session to Negotiated. It is an invariant
// violation (spec.md §3) to call this more than once per session; callers
// must check State == Initial first.
func (s *Session) Negotiate(id radcrypto.NodeID, now time.Time, addrs []rwire.Address, git rwire.GitURL) {
	s.State = Negotiated
	s.Negotiated = NegotiatedInfo{ID: id, Since: now, Addrs: addrs, Git: git}
}

// Disconnect transitions the session to the terminal Disconnected state.
func (s *Session) Disconnect(now time.Time, reason DisconnectReason) {
	s.State = Disconnected
	s.Disconn = DisconnectedInfo{Since: now, Reason: reason}
}

// SetFilter stores the peer's subscribe filter, gating which relays it
// receives.
func (s *Session) SetFilter(f rwire.ProjectFilter) {
	s.Filter = &f
}

// Subscribed reports whether this session's stored filter covers project.
// A session with no stored filter receives no relays (spec.md §4.1 relay
// policy).
func (s *Session) Subscribed(project radcrypto.ProjectID) bool {
	if s.Filter == nil {
		return false
	}
	return s.Filter.Contains(project)
}
