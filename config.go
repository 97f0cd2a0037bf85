package dpx

import "time"

// Config holds the compile-time tunables from spec.md §6. The teacher
// (v2/handshake.go's connSettings) hard-codes these per-Mux; DPX keeps them
// as a struct so tests can shrink queue depths and retry intervals without
// touching production defaults.
type Config struct {
	// ChannelQueueDepth bounds each Channel's incoming/outgoing queues.
	ChannelQueueDepth int
	// SocketReadChunk is the buffer size used for each conn.Read call.
	SocketReadChunk int
	// DecoderBufferSize is carried with the other tunables but is not read
	// by the msgpack decoder in DuplexConn.readLoop, so it sets no bound on
	// the codec's internal buffer.
	DecoderBufferSize int
	// DialRetries is the number of connection attempts Peer.Connect makes
	// before giving up.
	DialRetries int
	// DialRetryInterval is the pause between dial attempts.
	DialRetryInterval time.Duration
	// OpenQueueDepth bounds a Peer's pending-OPEN-frame queue.
	OpenQueueDepth int
	// AcceptQueueDepth bounds a Peer's incoming-channel (accept) queue.
	AcceptQueueDepth int
	// DuplexOutboundQueueDepth bounds each DuplexConn's outbound queue.
	DuplexOutboundQueueDepth int
	// IDParity resolves spec.md §9's open question on chan_index collision
	// between the two sides of a pairing: a Peer allocates channel ids
	// congruent to IDParity mod 2, the same scheme HTTP/2 uses for client
	// (odd) vs server (even) stream ids. The two ends of a pairing must be
	// configured with opposite parity.
	IDParity int
	// MaxOpenAttempts bounds how many connections routeOpenFrames tries
	// before giving up on a queued OPEN frame.
	MaxOpenAttempts int
}

// DefaultConfig mirrors the tunables enumerated in spec.md §6.
var DefaultConfig = Config{
	ChannelQueueDepth:        1024,
	SocketReadChunk:          8192,
	DecoderBufferSize:        65536,
	DialRetries:              20,
	DialRetryInterval:        1000 * time.Millisecond,
	OpenQueueDepth:           1024,
	AcceptQueueDepth:         1024,
	DuplexOutboundQueueDepth: 1024,
	IDParity:                 0,
	MaxOpenAttempts:          8,
}
