// Package addrmgr tracks candidate peer addresses the connection
// maintenance task can dial, independent of the service's live session
// table. It records per-address attempt counters and exposes the
// selection primitives the idle task uses to fill the outbound slot
// budget.
package addrmgr

import (
	"math/rand"
	"net"
	"sort"
	"time"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
)

var log = rlog.NewSubsystem("ADDR")

// KnownAddress is a candidate address recorded in the Book through Add,
// with the node id it belongs to, if known.
type KnownAddress struct {
	Addr     net.Addr
	NodeID   radcrypto.NodeID
	Attempts int
	LastSeen time.Time
	LastTry  time.Time
}

// Book is the set of known candidate addresses, keyed by their dial string.
// Iteration order is randomized under a per-instance seeded source so the
// same process doesn't always prefer the same candidates (a deterministic
// global rand would bias every node identically) — mirroring btcsuite's own
// per-instance `fastrand` generator rather than a process-global one.
type Book struct {
	addrs map[string]*KnownAddress
	rng   *rand.Rand
}

// New creates an address book seeded from src, so tests can supply a fixed
// seed for deterministic selection order.
func New(src rand.Source) *Book {
	return &Book{
		addrs: make(map[string]*KnownAddress),
		rng:   rand.New(src),
	}
}

// Add records addr as a candidate, associated with node if known. Adding an
// address already present is a no-op beyond refreshing LastSeen.
func (b *Book) Add(addr net.Addr, node radcrypto.NodeID, now time.Time) {
	key := addr.String()
	if ka, ok := b.addrs[key]; ok {
		ka.LastSeen = now
		return
	}
	b.addrs[key] = &KnownAddress{Addr: addr, NodeID: node, LastSeen: now}
	log.Debugf("addrmgr: learned candidate %v", key)
}

// RecordAttempt bumps the attempt counter for addr and its last-try time.
func (b *Book) RecordAttempt(addr net.Addr, now time.Time) {
	if ka, ok := b.addrs[addr.String()]; ok {
		ka.Attempts++
		ka.LastTry = now
	}
}

// Reset clears the attempt counter for addr, called after a successful
// negotiated connection.
func (b *Book) Reset(addr net.Addr) {
	if ka, ok := b.addrs[addr.String()]; ok {
		ka.Attempts = 0
	}
}

// Get returns the known address record for addr, if any.
func (b *Book) Get(addr net.Addr) (*KnownAddress, bool) {
	ka, ok := b.addrs[addr.String()]
	return ka, ok
}

// Select returns up to n candidate addresses eligible to dial: not already
// excluded, under maxAttempts. Candidates whose NodeID is in preferred sort
// ahead of the rest, biasing the idle task toward peers known to advertise
// a tracked project, per spec.md §4.1 connection maintenance.
func (b *Book) Select(n, maxAttempts int, excluded map[string]struct{}, preferred map[radcrypto.NodeID]struct{}) []*KnownAddress {
	var candidates []*KnownAddress
	for key, ka := range b.addrs {
		if _, skip := excluded[key]; skip {
			continue
		}
		if ka.Attempts >= maxAttempts {
			continue
		}
		candidates = append(candidates, ka)
	}

	// Shuffle first so ties among equally-preferred candidates aren't
	// biased by map iteration order, then stable-sort preferred ones to
	// the front.
	b.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		_, pi := preferred[candidates[i].NodeID]
		_, pj := preferred[candidates[j].NodeID]
		return pi && !pj
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
