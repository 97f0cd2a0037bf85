package dpx

import (
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Greeter runs once per DuplexConn, immediately after the TCP handshake and
// before any Frame traffic, in place of spec.md §4.5/§9's stubbed
// dpx_send_greeting/dpx_recv_greeting exchange (see original_source's
// peer.c). Returning an error aborts the connection before it is adopted.
type Greeter func(conn net.Conn) error

// openJob pairs a channel awaiting its first connection binding with the
// OPEN frame that announces it.
type openJob struct {
	ch    *Channel
	frame *Frame
}

// Peer is the connection pool and channel router described in spec.md
// §4.5: it owns zero or more DuplexConns, round-robin dispatches OPEN
// frames across them, and hands freshly accepted channels to callers of
// Accept.
//
// Grounded on mervinkid-matcha/net/tcp/peer/peer.go's pool-of-connections
// shape, replaced with this package's Queue/Bridge primitives in place of
// its raw channels and mutex-guarded slices, since spec.md §4.6 calls out
// chan_index/rr_index specifically as state that must only change on a
// single serialized path.
type Peer struct {
	cfg     Config
	logger  *zap.Logger
	metrics *Metrics
	Greeter Greeter

	bridge *Bridge

	mu        sync.Mutex
	connCond  *sync.Cond
	conns     []*DuplexConn
	listeners []net.Listener
	channels  map[int]*Channel
	rrIndex   int
	chanIndex int
	closed    bool

	openFrames *Queue[openJob]
	accepted   *Queue[*Channel]
}

// NewPeer constructs a Peer using cfg and logger (a nil logger defaults to
// zap.NewNop()). The returned Peer owns no connections until Connect, Bind,
// or AcceptConnection is called.
func NewPeer(cfg Config, logger *zap.Logger, metrics *Metrics) *Peer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Peer{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		bridge:     NewBridge(),
		channels:   make(map[int]*Channel),
		openFrames: NewQueue[openJob](cfg.OpenQueueDepth),
		accepted:   NewQueue[*Channel](cfg.AcceptQueueDepth),
	}
	p.connCond = sync.NewCond(&p.mu)
	go p.routeOpenFrames()
	return p
}

// Connect dials addr, retrying per cfg.DialRetries/cfg.DialRetryInterval
// (spec.md §6's connect tunables), runs the Greeter hook if set, and adopts
// the resulting connection.
func (p *Peer) Connect(addr string) error {
	var lastErr error
	attempts := p.cfg.DialRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			if p.Greeter != nil {
				if gerr := p.Greeter(conn); gerr != nil {
					conn.Close()
					lastErr = gerr
				} else {
					p.AcceptConnection(conn)
					return nil
				}
			} else {
				p.AcceptConnection(conn)
				return nil
			}
		} else {
			lastErr = err
		}
		p.logger.Debug("peer: dial attempt failed", zap.String("addr", addr), zap.Error(lastErr))
		if i != attempts-1 {
			time.Sleep(p.cfg.DialRetryInterval)
		}
	}
	return fmt.Errorf("dpx: dial %s: %w", addr, lastErr)
}

// Bind listens on addr and, for every accepted connection, runs the
// Greeter hook (if set) and then adopts it, repeating until the listener
// is closed by Close.
func (p *Peer) Bind(addr string) error {
	ln, err := listenReusable(addr)
	if err != nil {
		return fmt.Errorf("dpx: listen %s: %w", addr, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ln.Close()
		return ErrClosedPeer
	}
	p.listeners = append(p.listeners, ln)
	p.mu.Unlock()

	go p.acceptLoop(ln)
	return nil
}

func (p *Peer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			p.logger.Debug("peer: accept loop stopping", zap.Error(err))
			return
		}
		if p.Greeter != nil {
			if err := p.Greeter(conn); err != nil {
				p.logger.Debug("peer: greeter rejected connection", zap.Error(err))
				conn.Close()
				continue
			}
		}
		p.AcceptConnection(conn)
	}
}

// AcceptConnection adopts an already-established net.Conn as a new
// DuplexConn in this Peer's pool (spec.md §4.5 accept_connection).
func (p *Peer) AcceptConnection(conn net.Conn) *DuplexConn {
	dc := newDuplexConn(conn, p, p.cfg, p.logger)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		dc.Close()
		return nil
	}
	p.conns = append(p.conns, dc)
	n := len(p.conns)
	p.connCond.Broadcast()
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.ConnectionOpened()
	}
	p.logger.Debug("peer: adopted connection", zap.Int("pool_size", n))
	return dc
}

// forgetConn removes dc from the pool once it closes.
func (p *Peer) forgetConn(dc *DuplexConn) {
	p.mu.Lock()
	found := false
	for i, c := range p.conns {
		if c == dc {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			found = true
			break
		}
	}
	p.mu.Unlock()
	if found && p.metrics != nil {
		p.metrics.ConnectionClosed()
	}
}

// nextConn returns the next connection in round-robin order, serialized
// through the Bridge per spec.md §4.6 (rr_index is Bridge-owned state). ok
// is false if there are no connections, or if the Bridge (and so the Peer)
// is closing.
func (p *Peer) nextConn() (*DuplexConn, bool) {
	v, err := p.bridge.Join(func() (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		if len(p.conns) == 0 {
			return nil, nil
		}
		dc := p.conns[p.rrIndex%len(p.conns)]
		p.rrIndex++
		return dc, nil
	})
	if err != nil {
		return nil, false
	}
	dc, ok := v.(*DuplexConn)
	return dc, ok
}

// nextChanID allocates the next locally-opened channel id, serialized
// through the Bridge per spec.md §4.6 (chan_index is Bridge-owned state).
// It returns ErrClosedPeer if the Peer is closing.
func (p *Peer) nextChanID() (int, error) {
	v, err := p.bridge.Join(func() (any, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		id := p.chanIndex*2 + p.cfg.IDParity
		p.chanIndex++
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (p *Peer) registerChannel(ch *Channel) {
	p.mu.Lock()
	p.channels[ch.id] = ch
	p.mu.Unlock()
}

func (p *Peer) forgetChannel(ch *Channel) {
	p.mu.Lock()
	delete(p.channels, ch.id)
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.ChannelClosed()
	}
}

// Open creates a new client channel for method and queues its OPEN frame
// for round-robin dispatch (spec.md §4.5 open / §4.6 route_open_frames).
// Open returns as soon as the OPEN frame is queued; frames sent on the
// channel before routeOpenFrames binds it to a connection wait in the
// channel's outgoing queue, and SendFrame blocks only once that queue is full.
func (p *Peer) Open(method string) (*Channel, error) {
	id, err := p.nextChanID()
	if err != nil {
		return nil, err
	}
	ch := newChannel(p, id, false, method, p.cfg, p.logger)
	p.registerChannel(ch)
	if p.metrics != nil {
		p.metrics.ChannelOpened()
	}

	frame := NewFrame()
	frame.Type = FrameOpen
	frame.Channel = id
	frame.SetMethod(method)

	if err := p.openFrames.Send(openJob{ch: ch, frame: frame}); err != nil {
		p.forgetChannel(ch)
		return nil, ErrClosedPeer
	}
	return ch, nil
}

// routeOpenFrames is the one dispatcher goroutine that drains queued OPEN
// frames and assigns each to a connection in round-robin order, retrying on
// a different connection if the write fails (spec.md §4.6).
func (p *Peer) routeOpenFrames() {
	for {
		job, ok := p.openFrames.Recv()
		if !ok {
			return
		}
		p.dispatchOpen(job)
	}
}

// dispatchOpen assigns job to a connection, writing the OPEN frame before
// linking the channel (never after): link publishes the binding to the
// channel's pump, so linking first would let the pump race a queued DATA
// frame onto the wire ahead of the OPEN that announces the channel to the
// remote side. If the pool is currently empty, dispatchOpen waits for
// AcceptConnection to add one rather than failing the channel outright --
// a Peer that has only Bind() called on it, with no inbound connection yet,
// must still be able to hold a pending Open() until one arrives.
func (p *Peer) dispatchOpen(job openJob) {
	attempts := p.cfg.MaxOpenAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for {
		dc, ok := p.nextConn()
		if !ok {
			if !p.awaitConnection() {
				job.ch.Close(ErrPeerAlreadyClosed)
				return
			}
			continue
		}
		if err := dc.writeFrame(job.frame); err == nil {
			dc.link(job.ch)
			return
		}
		attempts--
		if attempts <= 0 {
			p.logger.Debug("peer: failed to dispatch OPEN frame", zap.Int("channel", job.ch.id))
			if p.metrics != nil {
				p.metrics.OpenDispatchFailed()
			}
			job.ch.Close(ErrNetworkFail)
			return
		}
	}
}

// awaitConnection blocks until the pool holds at least one connection, or
// returns false once the Peer has closed. This is the Go equivalent of
// spec.md §4.6's router step "await first_conn.recv()" / "loop back and
// await a newly added connection": a sync.Cond broadcast by
// AcceptConnection covers both the very first connection and every later
// one with a single mechanism.
func (p *Peer) awaitConnection() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.conns) == 0 && !p.closed {
		p.connCond.Wait()
	}
	return !p.closed
}

// handleOpen is a DuplexConn reader's entry point for a received OPEN
// frame: it creates a server channel, adopts the sender's method and
// channel id, links it to dc, and hands it to Accept's caller. It returns
// false if the peer is closed and the frame must be dropped.
func (p *Peer) handleOpen(dc *DuplexConn, frame *Frame) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	ch := newChannel(p, frame.Channel, true, frame.MethodOr(""), p.cfg, p.logger)
	p.registerChannel(ch)
	if p.metrics != nil {
		p.metrics.ChannelOpened()
	}
	dc.link(ch)

	if err := p.accepted.Send(ch); err != nil {
		ch.Close(ErrPeerAlreadyClosed)
		return false
	}
	return true
}

// Accept blocks for the next server channel opened by the remote side
// (spec.md §4.5 accept). ok is false once the peer has closed.
func (p *Peer) Accept() (*Channel, bool) {
	return p.accepted.Recv()
}

// Close idempotently shuts the peer down: stops accepting new connections
// and channels, closes every DuplexConn and listener, and wakes any
// blocked Accept/Open callers.
func (p *Peer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := append([]*DuplexConn(nil), p.conns...)
	listeners := append([]net.Listener(nil), p.listeners...)
	p.connCond.Broadcast()
	p.mu.Unlock()

	p.openFrames.Close()
	p.accepted.Close()
	for _, ln := range listeners {
		ln.Close()
	}
	for _, dc := range conns {
		dc.Close()
	}
	p.bridge.Close()
	return nil
}

// Free is a no-op kept for naming parity with Frame.Free and Channel.Free;
// Close does the actual teardown.
func (p *Peer) Free() {}
