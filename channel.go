package dpx

import (
	"sync"

	"go.uber.org/zap"
)

// Channel is the logical, bidirectional frame stream described in spec.md
// §3/§4.4. It is identified by a peer-local integer id, owns an incoming
// and an outgoing Queue, and a pump goroutine that binds the channel to
// whichever DuplexConn it currently rides on.
//
// Grounded on the teacher's Stream type (v2/mux.go), reshaped around
// explicit queues (rather than Stream's sync.Cond-guarded read buffer)
// because spec.md §4.2-§4.4 mandate queue-based handoff at every coroutine
// boundary, and around a rebindable connection pointer fed through the
// binding mailbox. DuplexConn.link is the only publisher of a binding, and
// Peer calls it once per channel (after the OPEN write for a client channel,
// on receipt of the OPEN for a server channel), so a channel whose
// connection fails waits in its pump for a new binding until it is closed.
type Channel struct {
	id     int
	peer   *Peer
	server bool
	logger *zap.Logger

	binding *mailbox[*DuplexConn]
	incoming *Queue[*Frame]
	outgoing *Queue[*Frame]
	cleanup  chan struct{}

	mu       sync.Mutex
	conn     *DuplexConn
	method   string
	closed   bool
	lastSeen bool
	err      ErrorCode
}

func newChannel(peer *Peer, id int, server bool, method string, cfg Config, logger *zap.Logger) *Channel {
	ch := &Channel{
		id:       id,
		peer:     peer,
		server:   server,
		method:   method,
		logger:   logger,
		binding:  newMailbox[*DuplexConn](),
		incoming: NewQueue[*Frame](cfg.ChannelQueueDepth),
		outgoing: NewQueue[*Frame](cfg.ChannelQueueDepth),
		cleanup:  make(chan struct{}),
	}
	go ch.pump()
	return ch
}

// ID returns the channel's peer-local id.
func (ch *Channel) ID() int { return ch.id }

// IsServer reports whether this channel was created by a received OPEN
// frame (true) or by a local Open call (false).
func (ch *Channel) IsServer() bool { return ch.server }

// Method returns the channel's current method name.
func (ch *Channel) Method() string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.method
}

// SetMethod sets the channel's method name and returns the old value
// (spec.md §6 channel_method_set).
func (ch *Channel) SetMethod(m string) string {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	old := ch.method
	ch.method = m
	return old
}

// Error returns the channel's terminal error code, or ErrNone if the
// channel has not been closed.
func (ch *Channel) Error() ErrorCode {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !ch.closed {
		return ErrNone
	}
	return ch.err
}

// bindTo is called by DuplexConn.link to publish a new binding; the pump
// picks it up on its next iteration (or immediately, if awaiting its first).
func (ch *Channel) bindTo(dc *DuplexConn) {
	ch.binding.Publish(dc)
}

// connLost notifies the channel that dc (its current binding, or one it may
// race to learn about) went away. The pump discovers this on its own via a
// failed write, so connLost only needs to drop the cached pointer if it
// still matches, prompting the next send attempt to block for a rebind.
func (ch *Channel) connLost(dc *DuplexConn) {
	ch.mu.Lock()
	if ch.conn == dc {
		ch.conn = nil
	}
	ch.mu.Unlock()
}

// SendFrame validates, deep-copies, and queues frame for transmission
// (spec.md §4.4 send_frame). The copy is owned by the pump thereafter.
func (ch *Channel) SendFrame(frame *Frame) ErrorCode {
	ch.mu.Lock()
	if ch.closed {
		code := ch.err
		ch.mu.Unlock()
		if code == ErrNone {
			code = ErrChanClosed
		}
		return code
	}
	ch.mu.Unlock()

	cp := frame.Copy()
	cp.Channel = ch.id
	cp.Type = FrameData
	if err := ch.outgoing.Send(cp); err != nil {
		return ErrChanClosed
	}
	return ErrNone
}

// ReceiveFrame blocks for the next inbound data frame (spec.md §4.4
// receive_frame). It returns (nil, false) once the channel has reached
// end-of-stream: immediately if this is a server channel that has already
// observed `last`, or once incoming drains after that point.
func (ch *Channel) ReceiveFrame() (*Frame, bool) {
	ch.mu.Lock()
	if ch.server && ch.lastSeen {
		ch.mu.Unlock()
		return nil, false
	}
	ch.mu.Unlock()

	frame, ok := ch.incoming.Recv()
	if !ok {
		return nil, false
	}
	if frame.Last {
		ch.mu.Lock()
		if ch.server {
			ch.lastSeen = true
			ch.mu.Unlock()
		} else {
			ch.mu.Unlock()
			go ch.Close(ErrNone)
		}
	}
	return frame, true
}

// handleIncoming is the reader's entry point for a DATA frame addressed to
// this channel (spec.md §4.4 handle_incoming).
func (ch *Channel) handleIncoming(frame *Frame) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.mu.Unlock()

	if !frame.Last && frame.HasError() {
		ch.logger.Debug("channel: closing on frame carrying an error", zap.Int("channel", ch.id))
		go ch.Close(ErrChanFrame)
		return
	}
	if err := ch.incoming.Send(frame); err != nil {
		ch.logger.Debug("channel: dropped incoming frame on closed queue", zap.Int("channel", ch.id))
	}
}

// pump is the one coroutine per channel described in spec.md §4.4: it binds
// the channel to a DuplexConn and forwards queued outbound frames to it,
// retrying on a replacement connection if a write fails.
func (ch *Channel) pump() {
	defer close(ch.cleanup)

	conn, ok := ch.binding.Recv()
	if !ok {
		return
	}
	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()

	for {
		if nc, ok := ch.binding.TryRecv(); ok {
			ch.mu.Lock()
			ch.conn = nc
			ch.mu.Unlock()
		} else if ch.binding.Closed() {
			return
		}

		frame, err := ch.outgoing.TryRecv()
		switch err {
		case ErrClosedQueue:
			return
		case ErrQueueEmpty:
			// nothing to send this tick; yield so sibling pumps progress
			yield()
			continue
		}

		ch.transmit(frame)
		yield()
	}
}

// transmit writes frame via the channel's current connection, blocking for
// a replacement connection and retrying if the write fails, until it
// succeeds or the channel is closed out from under it.
func (ch *Channel) transmit(frame *Frame) {
	for {
		ch.mu.Lock()
		conn := ch.conn
		ch.mu.Unlock()

		if conn != nil {
			if err := conn.writeFrame(frame); err == nil {
				if frame.HasError() {
					go ch.Close(ErrChanFrame)
				} else if frame.Last && ch.server {
					go ch.Close(ErrNone)
				}
				return
			}
		}

		nc, ok := ch.binding.Recv()
		if !ok {
			return
		}
		ch.mu.Lock()
		ch.conn = nc
		ch.mu.Unlock()
	}
}

// Close idempotently tears the channel down (spec.md §4.4 close): it marks
// the channel closed with reason, closes all three queues (waking every
// waiter), unlinks from its current DuplexConn, and waits for the pump to
// finish draining before returning.
func (ch *Channel) Close(reason ErrorCode) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.err = reason
	conn := ch.conn
	ch.mu.Unlock()

	ch.binding.Close()
	ch.incoming.Close()
	ch.outgoing.Close()
	if conn != nil {
		conn.unlink(ch)
	}
	<-ch.cleanup
	ch.peer.forgetChannel(ch)
}

// Free is a no-op kept for ABI-naming parity with spec.md's channel_free.
func (ch *Channel) Free() {}
