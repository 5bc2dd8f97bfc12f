package session

import (
	"math/rand"
	"net"
	"sort"

	"github.com/radworks/radicle-node/radcrypto"
)

// Book is the AddressBook of spec.md §3: the live sessions, keyed by remote
// socket address. Iteration is exposed only through Each, which visits
// entries in an order deterministic under the book's own entropy source so
// tests can assert on broadcast ordering without depending on Go's map
// iteration randomization.
type Book struct {
	sessions map[string]*Session
	rng      *rand.Rand
}

// NewBook creates an address book seeded from src.
func NewBook(src rand.Source) *Book {
	return &Book{
		sessions: make(map[string]*Session),
		rng:      rand.New(src),
	}
}

// Put inserts or replaces the session for addr.
func (b *Book) Put(addr net.Addr, s *Session) {
	b.sessions[addr.String()] = s
}

// Get returns the session for addr, if any.
func (b *Book) Get(addr net.Addr) (*Session, bool) {
	s, ok := b.sessions[addr.String()]
	return s, ok
}

// Delete removes the session for addr.
func (b *Book) Delete(addr net.Addr) {
	delete(b.sessions, addr.String())
}

// Len returns the number of tracked sessions.
func (b *Book) Len() int {
	return len(b.sessions)
}

// NegotiatedCount returns the number of sessions currently in the
// Negotiated state.
func (b *Book) NegotiatedCount() int {
	n := 0
	for _, s := range b.sessions {
		if s.State == Negotiated {
			n++
		}
	}
	return n
}

// Each visits every session in a randomized order, derived from the book's
// seeded generator rather than Go's map iteration order, so repeated calls
// within one process are reproducible given the same seed.
func (b *Book) Each(fn func(addr string, s *Session)) {
	keys := make([]string, 0, len(b.sessions))
	for k := range b.sessions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.rng.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})
	for _, k := range keys {
		fn(k, b.sessions[k])
	}
}

// FindByNodeID returns the negotiated session for id, if one is connected.
// A NodeID may have appeared on multiple addresses over time (spec.md §9);
// this returns whichever live negotiated session currently holds it.
func (b *Book) FindByNodeID(id radcrypto.NodeID) (*Session, string, bool) {
	for addr, s := range b.sessions {
		if s.State == Negotiated && s.Negotiated.ID == id {
			return s, addr, true
		}
	}
	return nil, "", false
}

// Negotiated visits every session currently in the Negotiated state.
func (b *Book) Negotiated(fn func(addr string, s *Session)) {
	b.Each(func(addr string, s *Session) {
		if s.State == Negotiated {
			fn(addr, s)
		}
	})
}
