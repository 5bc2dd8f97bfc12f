// Package service implements the gossip protocol's core state machine
// (spec.md §4.1): a single-threaded, synchronous driver over sessions, the
// routing table, the periodic scheduler, and the fetch/verify pipeline. It
// owns no threads and performs no blocking I/O beyond the two operations
// spec.md §5 explicitly allows to block (sign_refs and the verify-and-swap
// fetch); every other input is one function call that mutates state and
// drains to an outbox of Io directives.
package service

import (
	"net"
	"time"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/session"
)

var log = rlog.NewSubsystem("SRVC")

// Service is the gossip protocol core. It is not safe for concurrent use;
// the reactor is expected to call into it from a single goroutine (spec.md
// §5).
type Service struct {
	ctx *Context

	lastIdle     time.Time
	lastSync     time.Time
	lastPrune    time.Time
	lastAnnounce time.Time
}

// New creates a Service driving ctx. Call Initialize before feeding any
// other input.
func New(ctx *Context) *Service {
	return &Service{ctx: ctx}
}

// Initialize seeds the scheduler's interval timers and schedules the first
// wakeup, the way a freshly started reactor hands control to the core.
func (s *Service) Initialize(now time.Time) {
	s.lastIdle = now
	s.lastSync = now
	s.lastPrune = now
	s.lastAnnounce = now
	s.ctx.emit(Wakeup{After: s.nextInterval()})
}

// Wake is the zero-argument convenience the reactor calls in response to a
// previously emitted Wakeup; it reads the current time off the Service's
// own clock. Tick is the form that takes an explicit timestamp, used
// directly by tests and by reactors that already have `now` in hand.
func (s *Service) Wake() {
	s.Tick(s.ctx.now())
}

// Tick runs every periodic task whose interval has elapsed as of now, and
// schedules the next Wakeup (spec.md §4.1 "Periodic scheduler"). This is
// the single entry point for all time-driven work; received_message,
// commands, and connection events never themselves run scheduled tasks.
func (s *Service) Tick(now time.Time) {
	cfg := s.ctx.Config

	if now.Sub(s.lastIdle) >= cfg.IdleInterval {
		s.runIdleTask(now)
		s.lastIdle = now
	}
	if now.Sub(s.lastSync) >= cfg.SyncInterval {
		s.runSyncTask(now)
		s.lastSync = now
	}
	if now.Sub(s.lastAnnounce) >= cfg.AnnounceInterval {
		s.runAnnounceTask(now)
		s.lastAnnounce = now
	}
	if now.Sub(s.lastPrune) >= cfg.PruneInterval {
		s.runPruneTask(now)
		s.lastPrune = now
	}

	s.ctx.emit(Wakeup{After: s.nextInterval()})
}

// nextInterval is the shortest configured interval, so a single recurring
// Wakeup is enough to keep every task on schedule.
func (s *Service) nextInterval() time.Duration {
	cfg := s.ctx.Config
	shortest := cfg.IdleInterval
	for _, d := range []time.Duration{cfg.SyncInterval, cfg.AnnounceInterval, cfg.PruneInterval} {
		if d < shortest {
			shortest = d
		}
	}
	return shortest
}

// runIdleTask fills the outbound slot budget: while fewer than
// TargetOutboundPeers sessions are negotiated, dial more candidates from
// the address manager, biased toward peers advertising tracked projects.
func (s *Service) runIdleTask(now time.Time) {
	need := s.ctx.Config.TargetOutboundPeers - s.ctx.Sessions.NegotiatedCount()
	if need <= 0 {
		return
	}

	excluded := make(map[string]struct{})
	s.ctx.Sessions.Each(func(addr string, _ *session.Session) {
		excluded[addr] = struct{}{}
	})

	preferred := make(map[radcrypto.NodeID]struct{})
	for _, project := range s.ctx.Tracking.Projects() {
		for _, node := range s.ctx.Routing.Seeds(project) {
			preferred[node] = struct{}{}
		}
	}

	candidates := s.ctx.Addrs.Select(need, s.ctx.Config.MaxConnectionAttempts, excluded, preferred)
	for _, ka := range candidates {
		s.ctx.Addrs.RecordAttempt(ka.Addr, now)
		s.ctx.Sessions.Put(ka.Addr, session.New(ka.Addr, session.Outbound, false))
		s.ctx.emit(Connect{Addr: ka.Addr.String()})
	}
}

// runSyncTask is reserved for anti-entropy beyond inventory re-announcement
// (spec.md §1 Non-goals scope this out); it currently only keeps the
// interval accounting alive so a later policy can hang work off it without
// disturbing the scheduler shape.
func (s *Service) runSyncTask(now time.Time) {}

// runAnnounceTask signs and sends a fresh InventoryAnnouncement to every
// negotiated peer, but only when some tracked project is out of sync
// (spec.md §4.1). Each peer receives the intersection of the local
// inventory with its own stored subscribe filter, rather than always the
// full inventory (spec.md §9 "Filtered inventory re-announcement"); a peer
// that hasn't sent a Subscribe yet gets the unfiltered inventory, the
// conservative default before its preference is known.
func (s *Service) runAnnounceTask(now time.Time) {
	if !s.ctx.Tracking.OutOfSync() {
		return
	}

	inventory, err := s.ctx.Storage.Inventory()
	if err != nil {
		log.Errorf("announce: read inventory: %v", err)
		return
	}

	magic, err := s.ctx.Config.Network.Magic()
	if err != nil {
		log.Errorf("announce: %v", err)
		return
	}
	self := s.ctx.Signer.NodeID()

	s.ctx.Sessions.Negotiated(func(addr string, sess *session.Session) {
		ann, err := s.buildInventoryAnnouncement(self, s.buildInventoryFor(sess, inventory), now)
		if err != nil {
			log.Errorf("announce: build announcement for %v: %v", addr, err)
			return
		}
		s.ctx.emit(Write{Addr: addr, Envelopes: []*rwire.Envelope{{Magic: magic, Msg: ann}}})
	})

	s.ctx.Tracking.ClearOutOfSync()
}

// buildInventoryFor narrows inventory to the projects sess's stored
// subscribe filter covers, or returns it unchanged if sess has not yet
// installed a filter.
func (s *Service) buildInventoryFor(sess *session.Session, inventory []radcrypto.ProjectID) []radcrypto.ProjectID {
	if sess.Filter == nil {
		return inventory
	}
	filtered := make([]radcrypto.ProjectID, 0, len(inventory))
	for _, project := range inventory {
		if sess.Filter.Contains(project) {
			filtered = append(filtered, project)
		}
	}
	return filtered
}

func (s *Service) buildInventoryAnnouncement(self radcrypto.NodeID, inventory []radcrypto.ProjectID, now time.Time) (*rwire.InventoryAnnouncement, error) {
	payload := rwire.InventoryAnnouncementPayload{
		Inventory: inventory,
		Timestamp: toUnix(now),
	}
	data, err := payload.DataToSign()
	if err != nil {
		return nil, err
	}
	return &rwire.InventoryAnnouncement{
		Node:      self,
		Message:   payload,
		Signature: s.ctx.Signer.Sign(data),
	}, nil
}

// runPruneTask removes routing entries whose last advertisement exceeds
// the configured TTL (spec.md §4.5, §9 — the exact TTL is a configuration
// knob, decided in DESIGN.md).
func (s *Service) runPruneTask(now time.Time) {
	s.ctx.Routing.Prune(now, s.ctx.Config.PruneTTL)
}

// Attempted records that the reactor began dialing addr.
func (s *Service) Attempted(addr net.Addr) {
	if _, ok := s.ctx.Sessions.Get(addr); !ok {
		s.ctx.Sessions.Put(addr, session.New(addr, session.Outbound, false))
	}
}

// Connected records a live transport to addr and, for outbound sessions,
// sends the handshake bundle immediately (spec.md §4.1 Handshake).
func (s *Service) Connected(addr net.Addr, local net.Addr, link session.Link) {
	sess, ok := s.ctx.Sessions.Get(addr)
	if !ok {
		sess = session.New(addr, link, false)
		s.ctx.Sessions.Put(addr, sess)
	}
	sess.Link = link
	s.ctx.Addrs.Reset(addr)

	if link == session.Outbound {
		bundle, err := s.handshakeBundle()
		if err != nil {
			log.Errorf("connected: build handshake bundle: %v", err)
			return
		}
		s.ctx.emit(Write{Addr: addr.String(), Envelopes: bundle})
	}
}

// Disconnected transitions addr's session to Disconnected and, for
// persistent peers whose prior reason permits it, redials (spec.md §7).
func (s *Service) Disconnected(addr net.Addr, reason session.DisconnectReason) {
	sess, ok := s.ctx.Sessions.Get(addr)
	if !ok {
		return
	}
	now := s.ctx.now()
	sess.Disconnect(now, reason)
	s.ctx.emit(EventIo{Event: SessionClosed{Addr: addr.String(), Reason: reason}})

	if sess.Persistent &&
		reason == session.ReasonTransient &&
		sess.Attempts < s.ctx.Config.MaxConnectionAttempts {
		sess.Attempts++
		s.ctx.emit(Connect{Addr: addr.String()})
	}
}

// handshakeBundle builds the four-message bundle sent on outbound connect,
// and in reply to an inbound peer's Initialize (spec.md §4.1).
func (s *Service) handshakeBundle() ([]*rwire.Envelope, error) {
	magic, err := s.ctx.Config.Network.Magic()
	if err != nil {
		return nil, err
	}
	now := s.ctx.now()
	self := s.ctx.Signer.NodeID()

	listenAddr, err := parseAddress(s.ctx.Config.ListenAddr)
	if err != nil {
		return nil, err
	}

	initMsg := &rwire.Initialize{
		ID:      self,
		Version: rwire.ProtocolVersion,
		Listen:  []rwire.Address{listenAddr},
		Git:     rwire.GitURL(s.ctx.Config.ListenAddr),
	}

	nodePayload := rwire.NodeAnnouncementPayload{
		Timestamp: toUnix(now),
		Addresses: []rwire.Address{listenAddr},
	}
	nodeData, err := nodePayload.DataToSign()
	if err != nil {
		return nil, err
	}
	nodeAnn := &rwire.NodeAnnouncement{
		Node:      self,
		Message:   nodePayload,
		Signature: s.ctx.Signer.Sign(nodeData),
	}

	inventory, err := s.ctx.Storage.Inventory()
	if err != nil {
		return nil, err
	}
	invPayload := rwire.InventoryAnnouncementPayload{
		Inventory: inventory,
		Timestamp: toUnix(now),
	}
	invData, err := invPayload.DataToSign()
	if err != nil {
		return nil, err
	}
	invAnn := &rwire.InventoryAnnouncement{
		Node:      self,
		Message:   invPayload,
		Signature: s.ctx.Signer.Sign(invData),
	}

	sub := &rwire.Subscribe{
		Filter: rwire.NewProjectFilter(s.ctx.Tracking.Projects()...),
		Since:  toUnix(now),
		Until:  ^uint64(0),
	}

	return []*rwire.Envelope{
		{Magic: magic, Msg: initMsg},
		{Magic: magic, Msg: nodeAnn},
		{Magic: magic, Msg: invAnn},
		{Magic: magic, Msg: sub},
	}, nil
}

// broadcast appends a Write directive for every negotiated peer except
// excludeAddr, without consulting subscribe filters. Filter-gated relay of
// RefsAnnouncements goes through relayRefsAnnouncement instead.
func (s *Service) broadcast(msg rwire.Message, excludeAddr string) {
	magic, err := s.ctx.Config.Network.Magic()
	if err != nil {
		log.Errorf("broadcast: %v", err)
		return
	}
	env := &rwire.Envelope{Magic: magic, Msg: msg}

	s.ctx.Sessions.Negotiated(func(addr string, sess *session.Session) {
		if addr == excludeAddr {
			return
		}
		s.ctx.emit(Write{Addr: addr, Envelopes: []*rwire.Envelope{env}})
	})
}

// relayRefsAnnouncement sends ann only to negotiated peers whose stored
// subscribe filter contains the announced project (spec.md §4.1 Relay
// policy, §8 property 7).
func (s *Service) relayRefsAnnouncement(ann *rwire.RefsAnnouncement, excludeAddr string) {
	magic, err := s.ctx.Config.Network.Magic()
	if err != nil {
		log.Errorf("relay: %v", err)
		return
	}
	env := &rwire.Envelope{Magic: magic, Msg: ann}

	s.ctx.Sessions.Negotiated(func(addr string, sess *session.Session) {
		if addr == excludeAddr {
			return
		}
		if !sess.Subscribed(ann.Message.ID) {
			return
		}
		s.ctx.emit(Write{Addr: addr, Envelopes: []*rwire.Envelope{env}})
	})
}

func toUnix(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}

func fromUnix(u uint64) time.Time {
	return time.Unix(int64(u), 0)
}

func parseAddress(hostport string) (rwire.Address, error) {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return rwire.Address{}, err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv4zero
	}
	var p uint16
	for _, c := range port {
		if c < '0' || c > '9' {
			break
		}
		p = p*10 + uint16(c-'0')
	}
	return rwire.Address{IP: ip, Port: p}, nil
}
