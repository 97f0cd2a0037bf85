package dpx

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestingPair establishes two Peers over a loopback TCP connection, one
// listening and one dialing, with opposite channel-id parity, and arranges
// for both to be closed on test cleanup. Grounded on the teacher's
// newTestingPair (v3/mux_test.go), which does the same Listen/Accept/Dial
// dance for a Mux pair.
func newTestingPair(tb testing.TB) (dialer, listener *Peer) {
	cfg := DefaultConfig
	cfg.DialRetries = 3
	cfg.DialRetryInterval = 10 * time.Millisecond

	dialerCfg := cfg
	dialerCfg.IDParity = 1
	listenerCfg := cfg
	listenerCfg.IDParity = 0

	logger := zap.NewNop()
	dialer = NewPeer(dialerCfg, logger, nil)
	listener = NewPeer(listenerCfg, logger, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)

	accepted := make(chan struct{}, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		listener.AcceptConnection(conn)
		accepted <- struct{}{}
	}()

	require.NoError(tb, dialer.Connect(ln.Addr().String()))
	<-accepted
	ln.Close()

	tb.Cleanup(func() {
		dialer.Close()
		listener.Close()
	})
	return dialer, listener
}

func TestOpenAcceptRoundTrip(t *testing.T) {
	dialer, listener := newTestingPair(t)

	serverCh := make(chan *Channel, 1)
	go func() {
		ch, ok := listener.Accept()
		if ok {
			serverCh <- ch
		}
	}()

	clientCh, err := dialer.Open("echo")
	require.NoError(t, err)

	var serverSide *Channel
	select {
	case serverSide = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the opened channel")
	}
	require.Equal(t, "echo", serverSide.Method())

	req := NewFrame()
	req.Payload = []byte("ping")
	require.Equal(t, ErrNone, clientCh.SendFrame(req))

	got, ok := serverSide.ReceiveFrame()
	require.True(t, ok)
	require.Equal(t, []byte("ping"), got.Payload)

	reply := NewFrame()
	reply.Payload = []byte("pong")
	reply.Last = true
	require.Equal(t, ErrNone, serverSide.SendFrame(reply))

	got, ok = clientCh.ReceiveFrame()
	require.True(t, ok)
	require.Equal(t, []byte("pong"), got.Payload)
	require.True(t, got.Last)
}

func TestChannelIDParityAvoidsCollision(t *testing.T) {
	dialer, listener := newTestingPair(t)

	ch1, err := dialer.Open("a")
	require.NoError(t, err)
	ch2, err := dialer.Open("b")
	require.NoError(t, err)
	ch3, err := listener.Open("c")
	require.NoError(t, err)

	require.Equal(t, 1, ch1.ID()%2)
	require.Equal(t, 1, ch2.ID()%2)
	require.Equal(t, 0, ch3.ID()%2)
	require.NotEqual(t, ch1.ID(), ch2.ID())
}

func TestPeerCloseUnblocksAccept(t *testing.T) {
	_, listener := newTestingPair(t)

	done := make(chan bool, 1)
	go func() {
		_, ok := listener.Accept()
		done <- ok
	}()

	require.NoError(t, listener.Close())

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not unblock after Close")
	}
}

// TestOpenBeforeAnyConnectionWaitsThenBinds exercises the §4.6 first-conn
// router gate: an Open issued against a Peer with no connection yet must
// not fail the channel, but should bind and dispatch once a
// connection is later adopted.
func TestOpenBeforeAnyConnectionWaitsThenBinds(t *testing.T) {
	cfg := DefaultConfig
	cfg.IDParity = 1
	logger := zap.NewNop()
	p := NewPeer(cfg, logger, nil)
	t.Cleanup(func() { p.Close() })

	ch, err := p.Open("deferred")
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	remoteCfg := DefaultConfig
	remoteCfg.IDParity = 0
	remote := NewPeer(remoteCfg, logger, nil)
	t.Cleanup(func() { remote.Close() })

	serverCh := make(chan *Channel, 1)
	go func() {
		c, ok := remote.Accept()
		if ok {
			serverCh <- c
		}
	}()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		p.AcceptConnection(conn)
	}()
	require.NoError(t, remote.Connect(ln.Addr().String()))

	req := NewFrame()
	req.Payload = []byte("hello")
	require.Equal(t, ErrNone, ch.SendFrame(req))

	select {
	case serverSide := <-serverCh:
		got, ok := serverSide.ReceiveFrame()
		require.True(t, ok)
		require.Equal(t, []byte("hello"), got.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("deferred Open never bound to the connection added after it")
	}
}

func TestSendFrameAfterChannelCloseFails(t *testing.T) {
	dialer, listener := newTestingPair(t)

	serverCh := make(chan *Channel, 1)
	go func() {
		ch, ok := listener.Accept()
		if ok {
			serverCh <- ch
		}
	}()

	clientCh, err := dialer.Open("noop")
	require.NoError(t, err)
	<-serverCh

	clientCh.Close(ErrNone)
	code := clientCh.SendFrame(NewFrame())
	require.Equal(t, ErrChanClosed, code)
}
