package service

import (
	"fmt"
	"net"
	"time"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/session"
)

// ReceivedMessage is the reactor's entry point for inbound traffic
// (spec.md §4.1 "Reactor-facing inputs"). Magic is checked before anything
// state-dependent: a mismatched network tag disconnects regardless of
// session state.
func (s *Service) ReceivedMessage(addr net.Addr, env *rwire.Envelope) {
	sess, ok := s.ctx.Sessions.Get(addr)
	if !ok {
		log.Warnf("received message from unknown session %v", addr)
		return
	}

	configuredMagic, err := s.ctx.Config.Network.Magic()
	if err != nil {
		log.Errorf("received message: %v", err)
		return
	}
	if env.Magic != configuredMagic {
		s.disconnect(addr, sess, &SessionError{Kind: ErrWrongMagic, Magic: env.Magic})
		return
	}

	switch sess.State {
	case session.Initial:
		s.dispatchInitial(addr, sess, env.Msg)
	case session.Negotiated:
		s.dispatchNegotiated(addr, sess, env.Msg)
	case session.Disconnected:
		// Terminal; any further traffic is ignored (spec.md §4.1).
	}
}

func (s *Service) dispatchInitial(addr net.Addr, sess *session.Session, msg rwire.Message) {
	init, ok := msg.(*rwire.Initialize)
	if !ok {
		s.disconnect(addr, sess, &SessionError{Kind: ErrMisbehavior, Detail: "message before handshake"})
		return
	}
	if init.Version != rwire.ProtocolVersion {
		s.disconnect(addr, sess, &SessionError{Kind: ErrWrongVersion, Detail: versionDetail(init.Version)})
		return
	}

	// A node reconnecting under a new address supersedes its prior
	// session rather than running two live sessions under one identity
	// (spec.md §9 "Duplicate-session guard").
	if old, oldAddr, ok := s.ctx.Sessions.FindByNodeID(init.ID); ok && oldAddr != addr.String() {
		now := s.ctx.now()
		old.Disconnect(now, session.ReasonProtocolError)
		s.ctx.emit(EventIo{Event: SessionClosed{Addr: oldAddr, Reason: session.ReasonProtocolError}})
		s.ctx.emit(Disconnect{Addr: oldAddr, Reason: &SessionError{Kind: ErrMisbehavior, Detail: "superseded by reconnect"}})
	}

	now := s.ctx.now()
	sess.Negotiate(init.ID, now, init.Listen, init.Git)
	s.ctx.Addrs.Reset(addr)
	s.ctx.emit(EventIo{Event: SessionNegotiated{Addr: addr.String(), Node: init.ID}})

	if sess.Link == session.Inbound {
		bundle, err := s.handshakeBundle()
		if err != nil {
			log.Errorf("handshake reply: %v", err)
			return
		}
		s.ctx.emit(Write{Addr: addr.String(), Envelopes: bundle})
	}
}

func (s *Service) dispatchNegotiated(addr net.Addr, sess *session.Session, msg rwire.Message) {
	switch m := msg.(type) {
	case *rwire.InventoryAnnouncement:
		s.handleInventoryAnnouncement(addr, sess, m)
	case *rwire.RefsAnnouncement:
		s.handleRefsAnnouncement(addr, sess, m)
	case *rwire.NodeAnnouncement:
		s.handleNodeAnnouncement(addr, sess, m)
	case *rwire.Subscribe:
		sess.SetFilter(m.Filter)
	case *rwire.Initialize:
		s.disconnect(addr, sess, &SessionError{Kind: ErrMisbehavior, Detail: "redundant handshake"})
	}
}

func (s *Service) handleInventoryAnnouncement(addr net.Addr, sess *session.Session, msg *rwire.InventoryAnnouncement) {
	data, err := msg.Message.DataToSign()
	if err != nil || !radcrypto.Verify(msg.Node, data, msg.Signature) {
		s.disconnect(addr, sess, &SessionError{Kind: ErrMisbehavior, Detail: "bad inventory signature"})
		return
	}

	now := s.ctx.now()
	if absDuration(now.Sub(fromUnix(msg.Message.Timestamp))) > s.ctx.Config.MaxTimeDelta {
		log.Warnf("inventory: dropping announcement from %v, timestamp "+
			"outside accepted skew", msg.Node)
		return
	}

	peer := s.ctx.Peers.Get(msg.Node)
	if msg.Message.Timestamp <= toUnix(peer.LastMessage) {
		return // stale or duplicate; silent drop (spec.md §8 property 8).
	}
	s.ctx.Peers.RecordMessage(msg.Node, fromUnix(msg.Message.Timestamp))

	s.processInventory(msg.Node, msg.Message.Inventory, now, sess)

	if s.ctx.Config.Relay {
		s.broadcast(msg, addr.String())
	}
}

// processInventory inserts each announced project into the routing table
// and, for projects newly associated with this node that are also tracked,
// kicks off a best-effort fetch (spec.md §4.1 "process_inventory").
func (s *Service) processInventory(node radcrypto.NodeID, projects []radcrypto.ProjectID, now time.Time, sess *session.Session) {
	for _, project := range projects {
		isNewAssociation := s.ctx.Routing.Insert(project, node, now)
		if !isNewAssociation || !s.ctx.Tracking.IsTracked(project) {
			continue
		}

		report, err := s.ctx.Storage.Fetch(project, sess.Negotiated.Git)
		if err != nil {
			log.Warnf("process_inventory: fetch %v from %v: %v", project, node, err)
			s.ctx.emit(EventIo{Event: FetchFailed{Project: project, Node: node, Err: err}})
			continue
		}
		s.ctx.emit(EventIo{Event: RefsFetched{Project: project, Node: node, Updates: report.Updates}})
	}
}

func (s *Service) handleRefsAnnouncement(addr net.Addr, sess *session.Session, msg *rwire.RefsAnnouncement) {
	data, err := msg.Message.DataToSign()
	if err != nil || !radcrypto.Verify(msg.Node, data, msg.Signature) {
		s.disconnect(addr, sess, &SessionError{Kind: ErrMisbehavior, Detail: "bad refs signature"})
		return
	}

	project := msg.Message.ID
	if !s.ctx.Tracking.IsTracked(project) {
		return
	}

	report, err := s.ctx.Storage.Fetch(project, sess.Negotiated.Git)
	if err != nil {
		log.Warnf("refs announcement: fetch %v from %v: %v", project, msg.Node, err)
		s.ctx.emit(EventIo{Event: FetchFailed{Project: project, Node: msg.Node, Err: err}})
		return
	}
	s.ctx.emit(EventIo{Event: RefsFetched{Project: project, Node: msg.Node, Updates: report.Updates}})

	if len(report.Updates) > 0 {
		s.relayRefsAnnouncement(msg, addr.String())
	}
}

func (s *Service) handleNodeAnnouncement(addr net.Addr, sess *session.Session, msg *rwire.NodeAnnouncement) {
	data, err := msg.Message.DataToSign()
	if err != nil || !radcrypto.Verify(msg.Node, data, msg.Signature) {
		s.disconnect(addr, sess, &SessionError{Kind: ErrMisbehavior, Detail: "bad node announcement signature"})
		return
	}

	// Current policy: verify and accept but don't act, reserved for
	// future directory features (spec.md §4.1).
	if s.ctx.Config.Relay {
		s.broadcast(msg, addr.String())
	}
}

func (s *Service) disconnect(addr net.Addr, sess *session.Session, err *SessionError) {
	now := s.ctx.now()
	sess.Disconnect(now, session.ReasonProtocolError)
	s.ctx.emit(EventIo{Event: SessionClosed{Addr: addr.String(), Reason: session.ReasonProtocolError}})
	s.ctx.emit(Disconnect{Addr: addr.String(), Reason: err})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func versionDetail(v uint32) string {
	return fmt.Sprintf("got protocol version %d", v)
}
