package service

import (
	"time"

	"github.com/radworks/radicle-node/fetch"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/session"
)

// Io is a directive the core emits for the reactor to realize. The core
// never touches sockets or timers itself (spec.md §5): it only appends to
// its outbox, in order, and the reactor drains it each cycle.
type Io interface {
	isIo()
}

// Write asks the reactor to frame and send envelopes to addr, in order.
type Write struct {
	Addr      string
	Envelopes []*rwire.Envelope
}

func (Write) isIo() {}

// Connect asks the reactor to dial addr.
type Connect struct {
	Addr string
}

func (Connect) isIo() {}

// Disconnect asks the reactor to tear down the transport to addr, for
// Reason.
type Disconnect struct {
	Addr   string
	Reason error
}

func (Disconnect) isIo() {}

// Wakeup asks the reactor to call Wake (or Tick) again after After elapses.
type Wakeup struct {
	After time.Duration
}

func (Wakeup) isIo() {}

// EventIo surfaces an Event to the operator without requiring a transport
// action from the reactor.
type EventIo struct {
	Event Event
}

func (EventIo) isIo() {}

// Event is the sum type of notable occurrences the core surfaces to
// observers (logging, metrics, operator UIs) beyond command replies.
type Event interface {
	isEvent()
}

// RefsFetched reports the concrete ref updates a successful fetch applied
// to the canonical repository for Project, sourced from Node.
type RefsFetched struct {
	Project radcrypto.ProjectID
	Node    radcrypto.NodeID
	Updates []fetch.RefUpdate
}

func (RefsFetched) isEvent() {}

// FetchFailed reports a fetch attempt against Node for Project that did not
// apply (verification failure, transport error, or storage error). This
// never disconnects the peer (spec.md §7).
type FetchFailed struct {
	Project radcrypto.ProjectID
	Node    radcrypto.NodeID
	Err     error
}

func (FetchFailed) isEvent() {}

// SessionNegotiated reports a session completing its handshake.
type SessionNegotiated struct {
	Addr string
	Node radcrypto.NodeID
}

func (SessionNegotiated) isEvent() {}

// SessionClosed reports a session leaving the Negotiated/Initial state.
type SessionClosed struct {
	Addr   string
	Reason session.DisconnectReason
}

func (SessionClosed) isEvent() {}
