package service

import (
	"math/rand"
	"time"

	"github.com/radworks/radicle-node/addrmgr"
	"github.com/radworks/radicle-node/peerstore"
	"github.com/radworks/radicle-node/radconfig"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/routingtable"
	"github.com/radworks/radicle-node/session"
	"github.com/radworks/radicle-node/storage"
)

// Context is everything a Service owns, bundled so Service itself stays a
// thin driver over it rather than exposing each collaborator as its own
// field the way a deref chain would (spec.md §9: "Deref-based composition
// in the source is architectural noise").
type Context struct {
	Config   *radconfig.Config
	Signer   radcrypto.Signer
	Clock    Clock
	Storage  storage.Storage
	Routing  *routingtable.Table
	Sessions *session.Book
	Peers    *peerstore.Store
	Addrs    *addrmgr.Book
	Tracking *TrackingPolicy

	outbox []Io
}

// NewContext assembles a Context from its collaborators, defaulting the
// entropy-seeded components to a time-seeded source.
func NewContext(cfg *radconfig.Config, signer radcrypto.Signer, store storage.Storage, clock Clock) *Context {
	if clock == nil {
		clock = NewSystemClock()
	}
	seed := rand.NewSource(clock.Now().UnixNano())
	return &Context{
		Config:   cfg,
		Signer:   signer,
		Clock:    clock,
		Storage:  store,
		Routing:  routingtable.New(),
		Sessions: session.NewBook(seed),
		Peers:    peerstore.New(),
		Addrs:    addrmgr.New(seed),
		Tracking: NewTrackingPolicy(),
	}
}

func (c *Context) emit(io Io) {
	c.outbox = append(c.outbox, io)
}

func (c *Context) now() time.Time {
	return c.Clock.Now()
}

// DrainOutbox returns and clears every Io directive accumulated since the
// last drain. The reactor is expected to call this once per cycle and
// realize every entry, in order (spec.md §5 ordering guarantees).
func (c *Context) DrainOutbox() []Io {
	out := c.outbox
	c.outbox = nil
	return out
}
