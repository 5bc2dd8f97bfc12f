// Package peerstore tracks per-node-id metadata distinct from a live
// session: the last message timestamp used to drop duplicate or stale
// announcements, independent of which address a node happens to be
// connected from.
package peerstore

import (
	"time"

	"github.com/radworks/radicle-node/radcrypto"
)

// Peer is the per-node-id record described in spec.md §3.
type Peer struct {
	LastMessage time.Time
}

// Store maps NodeID to Peer. A single NodeID may appear on multiple
// addresses over the session book's lifetime; this store does not assume a
// 1:1 relationship between address and identity.
type Store struct {
	peers map[radcrypto.NodeID]*Peer
}

// New creates an empty peer store.
func New() *Store {
	return &Store{peers: make(map[radcrypto.NodeID]*Peer)}
}

// Get returns the peer record for id, creating one if absent.
func (s *Store) Get(id radcrypto.NodeID) *Peer {
	p, ok := s.peers[id]
	if !ok {
		p = &Peer{}
		s.peers[id] = p
	}
	return p
}

// LastMessage returns the last-message timestamp recorded for id, the zero
// time if none has been recorded yet.
func (s *Store) LastMessage(id radcrypto.NodeID) time.Time {
	if p, ok := s.peers[id]; ok {
		return p.LastMessage
	}
	return time.Time{}
}

// RecordMessage updates id's last-message timestamp to at, provided at is
// strictly newer than what's already recorded (callers are expected to
// have already rejected stale/duplicate timestamps before calling this).
func (s *Store) RecordMessage(id radcrypto.NodeID, at time.Time) {
	s.Get(id).LastMessage = at
}
