package session_test

import (
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/session"
)

func mustAddr(t *testing.T, s string) net.Addr {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", s)
	require.NoError(t, err)
	return addr
}

// TestNegotiateTransitionFromInitial checks that a new session starts
// Initial and that Negotiate moves it to Negotiated, recording the peer's
// id and the negotiation time.
func TestNegotiateTransitionFromInitial(t *testing.T) {
	addr := mustAddr(t, "127.0.0.1:9000")
	s := session.New(addr, session.Outbound, false)
	require.Equal(t, session.Initial, s.State)

	kp, err := radcrypto.GenerateKeyPair()
	require.NoError(t, err)

	now := time.Now()
	s.Negotiate(kp.NodeID(), now, nil, rwire.GitURL("git://peer/proj"))

	require.Equal(t, session.Negotiated, s.State)
	require.Equal(t, kp.NodeID(), s.Negotiated.ID)
	require.Equal(t, now, s.Negotiated.Since)
}

func TestDisconnectIsTerminal(t *testing.T) {
	addr := mustAddr(t, "127.0.0.1:9001")
	s := session.New(addr, session.Inbound, true)

	now := time.Now()
	s.Disconnect(now, session.ReasonTransient)

	require.Equal(t, session.Disconnected, s.State)
	require.Equal(t, session.ReasonTransient, s.Disconn.Reason)
}

func TestSubscribedRequiresStoredFilter(t *testing.T) {
	addr := mustAddr(t, "127.0.0.1:9002")
	s := session.New(addr, session.Outbound, false)

	var project radcrypto.ProjectID
	project[0] = 1
	require.False(t, s.Subscribed(project))

	s.SetFilter(rwire.NewProjectFilter(project))
	require.True(t, s.Subscribed(project))

	var other radcrypto.ProjectID
	other[0] = 2
	require.False(t, s.Subscribed(other))
}

func TestBookPutGetDelete(t *testing.T) {
	book := session.NewBook(rand.NewSource(1))
	addr := mustAddr(t, "127.0.0.1:9010")
	s := session.New(addr, session.Outbound, false)

	book.Put(addr, s)
	got, ok := book.Get(addr)
	require.True(t, ok)
	require.Same(t, s, got)
	require.Equal(t, 1, book.Len())

	book.Delete(addr)
	_, ok = book.Get(addr)
	require.False(t, ok)
	require.Equal(t, 0, book.Len())
}

func TestBookNegotiatedCountAndFindByNodeID(t *testing.T) {
	book := session.NewBook(rand.NewSource(2))

	kp, err := radcrypto.GenerateKeyPair()
	require.NoError(t, err)

	negotiatedAddr := mustAddr(t, "127.0.0.1:9020")
	negotiated := session.New(negotiatedAddr, session.Outbound, false)
	negotiated.Negotiate(kp.NodeID(), time.Now(), nil, rwire.GitURL("git://seed/proj"))
	book.Put(negotiatedAddr, negotiated)

	pendingAddr := mustAddr(t, "127.0.0.1:9021")
	book.Put(pendingAddr, session.New(pendingAddr, session.Inbound, false))

	require.Equal(t, 1, book.NegotiatedCount())

	found, addr, ok := book.FindByNodeID(kp.NodeID())
	require.True(t, ok)
	require.Equal(t, negotiatedAddr.String(), addr)
	require.Same(t, negotiated, found)

	otherKp, err := radcrypto.GenerateKeyPair()
	require.NoError(t, err)
	_, _, ok = book.FindByNodeID(otherKp.NodeID())
	require.False(t, ok)
}

func TestBookNegotiatedVisitsOnlyNegotiatedSessions(t *testing.T) {
	book := session.NewBook(rand.NewSource(3))

	kp, err := radcrypto.GenerateKeyPair()
	require.NoError(t, err)

	negotiatedAddr := mustAddr(t, "127.0.0.1:9030")
	negotiated := session.New(negotiatedAddr, session.Outbound, false)
	negotiated.Negotiate(kp.NodeID(), time.Now(), nil, rwire.GitURL(""))
	book.Put(negotiatedAddr, negotiated)

	initialAddr := mustAddr(t, "127.0.0.1:9031")
	book.Put(initialAddr, session.New(initialAddr, session.Inbound, false))

	visited := make(map[string]bool)
	book.Negotiated(func(addr string, s *session.Session) {
		visited[addr] = true
	})

	require.Equal(t, map[string]bool{negotiatedAddr.String(): true}, visited)
}
