package service_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radworks/radicle-node/radconfig"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/service"
	"github.com/radworks/radicle-node/session"
)

func mustAddr(t *testing.T, s string) net.Addr {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", s)
	require.NoError(t, err)
	return addr
}

func newTestSigner(t *testing.T) *radcrypto.KeyPair {
	t.Helper()
	kp, err := radcrypto.GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func newTestContext(t *testing.T, store *fakeStorage) (*service.Context, *fakeClock) {
	t.Helper()
	cfg := &radconfig.Config{
		Network:               radconfig.NetworkTest,
		ListenAddr:            "127.0.0.1:8776",
		TargetOutboundPeers:   8,
		MaxConnectionAttempts: 3,
		IdleInterval:          time.Hour,
		AnnounceInterval:      time.Hour,
		SyncInterval:          time.Hour,
		PruneInterval:         time.Hour,
		PruneTTL:              7 * 24 * time.Hour,
		MaxTimeDelta:          time.Hour,
	}
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	ctx := service.NewContext(cfg, newTestSigner(t), store, clock)
	return ctx, clock
}

func signedInventory(t *testing.T, signer *radcrypto.KeyPair, projects []radcrypto.ProjectID, ts uint64) *rwire.InventoryAnnouncement {
	t.Helper()
	payload := rwire.InventoryAnnouncementPayload{Inventory: projects, Timestamp: ts}
	data, err := payload.DataToSign()
	require.NoError(t, err)
	return &rwire.InventoryAnnouncement{
		Node:      signer.NodeID(),
		Message:   payload,
		Signature: signer.Sign(data),
	}
}

// TestHandshakeHappyPath covers S1: an inbound Initialize advances the
// session to Negotiated and the core replies with its own handshake
// bundle.
func TestHandshakeHappyPath(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	addr := mustAddr(t, "127.0.0.1:9100")
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Inbound)
	ctx.DrainOutbox()

	peer := newTestSigner(t)
	init := &rwire.Initialize{
		ID:      peer.NodeID(),
		Version: rwire.ProtocolVersion,
		Git:     rwire.GitURL("git://peer/proj"),
	}
	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)

	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: init})

	sess, ok := ctx.Sessions.Get(addr)
	require.True(t, ok)
	require.Equal(t, session.Negotiated, sess.State)
	require.Equal(t, peer.NodeID(), sess.Negotiated.ID)

	directives := ctx.DrainOutbox()
	var gotWrite, gotEvent bool
	for _, d := range directives {
		switch v := d.(type) {
		case service.Write:
			gotWrite = true
			require.NotEmpty(t, v.Envelopes)
		case service.EventIo:
			if _, ok := v.Event.(service.SessionNegotiated); ok {
				gotEvent = true
			}
		}
	}
	require.True(t, gotWrite, "expected a handshake reply to be written")
	require.True(t, gotEvent, "expected a SessionNegotiated event")
}

// TestWrongMagicDisconnects covers S2: an envelope on the wrong network
// magic disconnects regardless of session state.
func TestWrongMagicDisconnects(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	addr := mustAddr(t, "127.0.0.1:9101")
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Inbound)
	ctx.DrainOutbox()

	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: rwire.MagicMain, Msg: &rwire.Initialize{}})

	sess, ok := ctx.Sessions.Get(addr)
	require.True(t, ok)
	require.Equal(t, session.Disconnected, sess.State)

	var gotDisconnect bool
	for _, d := range ctx.DrainOutbox() {
		if dc, ok := d.(service.Disconnect); ok {
			gotDisconnect = true
			require.Equal(t, addr.String(), dc.Addr)
		}
	}
	require.True(t, gotDisconnect)
}

// TestInventoryThenTrackedFetch covers S3: a valid InventoryAnnouncement for
// a tracked project triggers a fetch and a RefsFetched event.
func TestInventoryThenTrackedFetch(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var project radcrypto.ProjectID
	project[0] = 0xaa
	ctx.Tracking.Track(project)

	addr := mustAddr(t, "127.0.0.1:9102")
	peer := newTestSigner(t)
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Outbound)
	ctx.DrainOutbox()

	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID:      peer.NodeID(),
		Version: rwire.ProtocolVersion,
		Git:     rwire.GitURL("git://peer/proj"),
	}})
	ctx.DrainOutbox()

	inv := signedInventory(t, peer, []radcrypto.ProjectID{project}, uint64(clock.now.Unix()))
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: inv})

	require.Len(t, store.fetchCalls, 1)
	require.Equal(t, project, store.fetchCalls[0].Project)

	var gotFetched bool
	for _, d := range ctx.DrainOutbox() {
		if e, ok := d.(service.EventIo); ok {
			if rf, ok := e.Event.(service.RefsFetched); ok {
				gotFetched = true
				require.Equal(t, project, rf.Project)
			}
		}
	}
	require.True(t, gotFetched)
}

// TestRefsAnnouncementBadSignatureDisconnects covers S4: a RefsAnnouncement
// whose signature doesn't verify disconnects the sender instead of
// triggering a fetch.
func TestRefsAnnouncementBadSignatureDisconnects(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var project radcrypto.ProjectID
	project[0] = 0xbb
	ctx.Tracking.Track(project)

	addr := mustAddr(t, "127.0.0.1:9103")
	peer := newTestSigner(t)
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Outbound)
	ctx.DrainOutbox()

	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID:      peer.NodeID(),
		Version: rwire.ProtocolVersion,
		Git:     rwire.GitURL("git://peer/proj"),
	}})
	ctx.DrainOutbox()

	payload := rwire.RefsAnnouncementPayload{ID: project, Refs: rwire.RefsMap{}}
	ann := &rwire.RefsAnnouncement{
		Node:      peer.NodeID(),
		Message:   payload,
		Signature: radcrypto.Signature{0xff}, // garbage signature
	}
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: ann})

	require.Empty(t, store.fetchCalls)
	sess, _ := ctx.Sessions.Get(addr)
	require.Equal(t, session.Disconnected, sess.State)
}

// TestFetchFailureKeepsPeerConnected checks that a fetch triggered by an
// inventory announcement which fails reports FetchFailed and does not
// disconnect the peer.
func TestFetchFailureKeepsPeerConnected(t *testing.T) {
	store := &fakeStorage{fetchErr: errBoom}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var project radcrypto.ProjectID
	project[0] = 0xcc
	ctx.Tracking.Track(project)

	addr := mustAddr(t, "127.0.0.1:9104")
	peer := newTestSigner(t)
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Outbound)
	ctx.DrainOutbox()

	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID:      peer.NodeID(),
		Version: rwire.ProtocolVersion,
		Git:     rwire.GitURL("git://peer/proj"),
	}})
	ctx.DrainOutbox()

	inv := signedInventory(t, peer, []radcrypto.ProjectID{project}, uint64(clock.now.Unix()))
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: inv})

	sess, _ := ctx.Sessions.Get(addr)
	require.Equal(t, session.Negotiated, sess.State, "a failed fetch must not disconnect the peer")

	var gotFailed bool
	for _, d := range ctx.DrainOutbox() {
		if e, ok := d.(service.EventIo); ok {
			if ff, ok := e.Event.(service.FetchFailed); ok {
				gotFailed = true
				require.Equal(t, project, ff.Project)
			}
		}
	}
	require.True(t, gotFailed)
}

// TestAnnounceTaskHonorsOutOfSync covers S6: the announce task only
// broadcasts when some tracked project is marked out of sync, and clears
// the flag afterward.
func TestAnnounceTaskHonorsOutOfSync(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var project radcrypto.ProjectID
	project[0] = 0xdd
	store.inventory = []radcrypto.ProjectID{project}

	addr := mustAddr(t, "127.0.0.1:9105")
	peer := newTestSigner(t)
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Outbound)
	ctx.DrainOutbox()

	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID:      peer.NodeID(),
		Version: rwire.ProtocolVersion,
		Git:     rwire.GitURL("git://peer/proj"),
	}})
	ctx.DrainOutbox()

	// Not yet out of sync: ticking past the announce interval does
	// nothing.
	clock.now = clock.now.Add(2 * time.Hour)
	svc.Tick(clock.now)
	require.False(t, hasWrite(ctx.DrainOutbox()))

	ctx.Tracking.Track(project)
	require.True(t, ctx.Tracking.OutOfSync())

	clock.now = clock.now.Add(2 * time.Hour)
	svc.Tick(clock.now)
	require.True(t, hasWrite(ctx.DrainOutbox()))
	require.False(t, ctx.Tracking.OutOfSync())
}

func hasWrite(directives []service.Io) bool {
	for _, d := range directives {
		if _, ok := d.(service.Write); ok {
			return true
		}
	}
	return false
}

// TestAnnounceTaskFiltersPerPeerSubscription covers the supplemental
// "filtered inventory re-announcement" behavior (spec.md §9): a peer whose
// stored Subscribe filter narrows to one project receives only that
// project in its InventoryAnnouncement, while a peer with no filter still
// gets the full inventory.
func TestAnnounceTaskFiltersPerPeerSubscription(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var tracked, other radcrypto.ProjectID
	tracked[0] = 0x11
	other[0] = 0x22
	store.inventory = []radcrypto.ProjectID{tracked, other}
	ctx.Tracking.Track(tracked)

	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)

	narrowAddr := mustAddr(t, "127.0.0.1:9201")
	narrowPeer := newTestSigner(t)
	svc.Attempted(narrowAddr)
	svc.Connected(narrowAddr, nil, session.Outbound)
	ctx.DrainOutbox()
	svc.ReceivedMessage(narrowAddr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID: narrowPeer.NodeID(), Version: rwire.ProtocolVersion, Git: rwire.GitURL("git://narrow/proj"),
	}})
	ctx.DrainOutbox()
	filter := rwire.NewProjectFilter(tracked)
	svc.ReceivedMessage(narrowAddr, &rwire.Envelope{Magic: magic, Msg: &rwire.Subscribe{Filter: filter}})

	openAddr := mustAddr(t, "127.0.0.1:9202")
	openPeer := newTestSigner(t)
	svc.Attempted(openAddr)
	svc.Connected(openAddr, nil, session.Outbound)
	ctx.DrainOutbox()
	svc.ReceivedMessage(openAddr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID: openPeer.NodeID(), Version: rwire.ProtocolVersion, Git: rwire.GitURL("git://open/proj"),
	}})
	ctx.DrainOutbox()

	clock.now = clock.now.Add(2 * time.Hour)
	svc.Tick(clock.now)
	directives := ctx.DrainOutbox()

	inventoryFor := func(addr string) []radcrypto.ProjectID {
		for _, d := range directives {
			w, ok := d.(service.Write)
			if !ok || w.Addr != addr {
				continue
			}
			for _, env := range w.Envelopes {
				if ann, ok := env.Msg.(*rwire.InventoryAnnouncement); ok {
					return ann.Message.Inventory
				}
			}
		}
		t.Fatalf("no InventoryAnnouncement written to %v", addr)
		return nil
	}

	require.Equal(t, []radcrypto.ProjectID{tracked}, inventoryFor(narrowAddr.String()))
	require.ElementsMatch(t, []radcrypto.ProjectID{tracked, other}, inventoryFor(openAddr.String()))
}

// TestFetchNotTrackingReturnsKind covers the Fetch command's first guard:
// an untracked project is rejected without consulting the routing table.
func TestFetchNotTrackingReturnsKind(t *testing.T) {
	store := &fakeStorage{}
	ctx, _ := newTestContext(t, store)
	svc := service.New(ctx)

	var project radcrypto.ProjectID
	project[0] = 0x01

	lookup := svc.Fetch(project)
	require.Equal(t, service.FetchNotTracking, lookup.Kind)
}

// TestFetchNotFoundWhenNoSeeds covers a tracked project with no known seed.
func TestFetchNotFoundWhenNoSeeds(t *testing.T) {
	store := &fakeStorage{}
	ctx, _ := newTestContext(t, store)
	svc := service.New(ctx)

	var project radcrypto.ProjectID
	project[0] = 0x02
	ctx.Tracking.Track(project)

	lookup := svc.Fetch(project)
	require.Equal(t, service.FetchNotFound, lookup.Kind)
}

// TestFetchOpenFailureReturnsError covers the up-front storage.Open guard
// (spec.md §4.1's FetchLookupKind.FetchError case, mirrored by
// original_source's own up-front self.storage.repository(id) open): a
// project with known seeds but an unopenable local repository fails
// before any seed is attempted.
func TestFetchOpenFailureReturnsError(t *testing.T) {
	store := &fakeStorage{openErr: errBoom}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)

	var project radcrypto.ProjectID
	project[0] = 0x03
	ctx.Tracking.Track(project)

	peer := newTestSigner(t)
	ctx.Routing.Insert(project, peer.NodeID(), clock.now)

	lookup := svc.Fetch(project)
	require.Equal(t, service.FetchError, lookup.Kind)
	require.ErrorIs(t, lookup.Err, errBoom)
	require.Empty(t, store.fetchCalls)
}

// TestFetchAttemptsEachConnectedSeed covers the success path: every known
// seed is attempted in turn, and a seed with no live session reports
// errNotConnected instead of calling into storage.
func TestFetchAttemptsEachConnectedSeed(t *testing.T) {
	store := &fakeStorage{}
	ctx, clock := newTestContext(t, store)
	svc := service.New(ctx)
	svc.Initialize(clock.now)
	ctx.DrainOutbox()

	var project radcrypto.ProjectID
	project[0] = 0x04
	ctx.Tracking.Track(project)

	connectedPeer := newTestSigner(t)
	addr := mustAddr(t, "127.0.0.1:9301")
	svc.Attempted(addr)
	svc.Connected(addr, nil, session.Outbound)
	ctx.DrainOutbox()
	magic, err := ctx.Config.Network.Magic()
	require.NoError(t, err)
	svc.ReceivedMessage(addr, &rwire.Envelope{Magic: magic, Msg: &rwire.Initialize{
		ID: connectedPeer.NodeID(), Version: rwire.ProtocolVersion, Git: rwire.GitURL("git://peer/proj"),
	}})
	ctx.DrainOutbox()
	ctx.Routing.Insert(project, connectedPeer.NodeID(), clock.now)

	unreachablePeer := newTestSigner(t)
	ctx.Routing.Insert(project, unreachablePeer.NodeID(), clock.now)

	lookup := svc.Fetch(project)
	require.Equal(t, service.FetchFound, lookup.Kind)
	require.Len(t, lookup.Results, 2)
	require.Len(t, store.fetchCalls, 1)

	byNode := make(map[radcrypto.NodeID]service.FetchResult, len(lookup.Results))
	for _, r := range lookup.Results {
		byNode[r.Node] = r
	}
	require.NoError(t, byNode[connectedPeer.NodeID()].Err)
	require.Error(t, byNode[unreachablePeer.NodeID()].Err)
}

var errBoom = &fetchBoomError{}

type fetchBoomError struct{}

func (*fetchBoomError) Error() string { return "fake verification failure" }
