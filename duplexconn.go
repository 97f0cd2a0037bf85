package dpx

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// outboundItem pairs a Frame awaiting transmission with the single-shot
// reply the caller uses to observe the write result (spec.md §3's "ephemeral
// single-shot error reply channel").
type outboundItem struct {
	frame *Frame
	reply chan error
}

// DuplexConn owns one TCP connection (spec.md §4.3): a reader goroutine that
// decodes frames and dispatches them, a writer goroutine that drains an
// outbound queue, and a registry mapping channel id to Channel for inbound
// dispatch.
//
// Grounded on the teacher's readLoop/writeLoop split in v2/mux.go, replacing
// its single-Mux-per-conn, sync.Cond-buffered write path with an explicit
// outbound Queue so a Peer can own many DuplexConns and retry a frame on a
// different one when a write fails.
type DuplexConn struct {
	conn   net.Conn
	peer   *Peer
	cfg    Config
	logger *zap.Logger

	outbound *Queue[outboundItem]

	mu       sync.Mutex
	channels map[int]*Channel
	closed   bool
}

func newDuplexConn(conn net.Conn, peer *Peer, cfg Config, logger *zap.Logger) *DuplexConn {
	dc := &DuplexConn{
		conn:     conn,
		peer:     peer,
		cfg:      cfg,
		logger:   logger,
		outbound: NewQueue[outboundItem](cfg.DuplexOutboundQueueDepth),
		channels: make(map[int]*Channel),
	}
	go dc.readLoop()
	go dc.writeLoop()
	return dc
}

// link inserts ch into the id map (replacing any prior binding for the same
// id) and publishes dc into ch's conn_binding mailbox, per spec.md §4.3.
func (dc *DuplexConn) link(ch *Channel) {
	dc.mu.Lock()
	dc.channels[ch.id] = ch
	dc.mu.Unlock()
	ch.bindTo(dc)
}

// unlink removes ch from the id map.
func (dc *DuplexConn) unlink(ch *Channel) {
	dc.mu.Lock()
	if dc.channels[ch.id] == ch {
		delete(dc.channels, ch.id)
	}
	dc.mu.Unlock()
}

func (dc *DuplexConn) lookup(id int) (*Channel, bool) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	ch, ok := dc.channels[id]
	return ch, ok
}

// writeFrame synchronously encodes and transmits frame, returning the
// write's outcome as an error (nil on full success). It is the blocking
// helper §4.3 describes: it allocates a fresh single-slot reply channel,
// enqueues the frame, and waits on the reply.
func (dc *DuplexConn) writeFrame(frame *Frame) error {
	reply := make(chan error, 1)
	if err := dc.outbound.Send(outboundItem{frame: frame, reply: reply}); err != nil {
		return ErrClosedDuplex
	}
	return <-reply
}

func (dc *DuplexConn) writeLoop() {
	for {
		item, ok := dc.outbound.Recv()
		if !ok {
			dc.conn.Close()
			return
		}
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		if err := enc.Encode(item.frame); err != nil {
			item.reply <- Err(ErrFatal)
			continue
		}
		n, err := dc.conn.Write(buf.Bytes())
		switch {
		case err != nil:
			item.reply <- Err(ErrNetworkFail)
			dc.setErr(err)
		case n != buf.Len():
			item.reply <- Err(ErrNetworkNotAll)
		default:
			item.reply <- nil
		}
	}
}

func (dc *DuplexConn) readLoop() {
	dec := msgpack.NewDecoder(bufio.NewReaderSize(dc.conn, dc.cfg.SocketReadChunk))
	for {
		frame := &Frame{}
		if err := dec.Decode(frame); err != nil {
			dc.logger.Debug("duplexconn: read loop stopping", zap.Error(err))
			dc.Close()
			return
		}
		dc.dispatch(frame)
	}
}

func (dc *DuplexConn) dispatch(frame *Frame) {
	switch {
	case frame.Type == FrameData:
		ch, ok := dc.lookup(frame.Channel)
		if !ok {
			dc.logger.Debug("duplexconn: dropped data frame for unknown channel",
				zap.Int("channel", frame.Channel))
			return
		}
		ch.handleIncoming(frame)
	case frame.Type == FrameOpen:
		if _, ok := dc.lookup(frame.Channel); ok {
			dc.logger.Warn("duplexconn: dropped OPEN for already-registered channel",
				zap.Int("channel", frame.Channel))
			return
		}
		if !dc.peer.handleOpen(dc, frame) {
			dc.logger.Debug("duplexconn: dropped OPEN (peer closed)",
				zap.Int("channel", frame.Channel))
		}
	default:
		dc.logger.Warn("duplexconn: dropped frame of unrecognized type",
			zap.Int("type", int(frame.Type)))
	}
}

// Close idempotently shuts the connection down: closes the outbound queue
// (which stops the writer), closes the socket, and clears the cached
// connection pointer of every channel registered here, so each pump's next
// write waits for a new binding (or for its channel to close). The id map
// itself is left as it is.
func (dc *DuplexConn) Close() error {
	dc.mu.Lock()
	if dc.closed {
		dc.mu.Unlock()
		return nil
	}
	dc.closed = true
	channels := make([]*Channel, 0, len(dc.channels))
	for _, ch := range dc.channels {
		channels = append(channels, ch)
	}
	dc.mu.Unlock()

	dc.outbound.Close()
	err := dc.conn.Close()
	for _, ch := range channels {
		ch.connLost(dc)
	}
	dc.peer.forgetConn(dc)
	return err
}

func (dc *DuplexConn) setErr(err error) {
	if err != nil && !errors.Is(err, io.EOF) {
		dc.logger.Debug("duplexconn: write error", zap.Error(err))
	}
	dc.Close()
}
