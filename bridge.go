package dpx

import "sync"

// A Bridge serializes work from arbitrary goroutines onto a single internal
// dispatcher goroutine, the way spec.md §4.6's Thread-Bridge funnels
// foreign-thread API calls onto the cooperative scheduler thread. Go
// goroutines are already safe to call concurrently, so a Bridge is not
// needed for general thread-safety here (that's handled by ordinary mutexes
// elsewhere in this package) -- it exists specifically for the two Peer
// fields spec.md says must only be mutated "by code running on the
// cooperative scheduler": chan_index and rr_index (see peer.go).
//
// Grounded on the channel-dispatch idiom in
// mervinkid-matcha/net/tcp/peer/pipeline.go (a single goroutine draining a
// work channel) and ack.go (blocking on a per-request response channel).
type Bridge struct {
	work chan bridgeJob
	done chan struct{}
	once sync.Once
}

type bridgeJob struct {
	fn   func() (any, error)
	resp chan bridgeResult
}

type bridgeResult struct {
	val any
	err error
}

// NewBridge starts a Bridge's dispatcher goroutine.
func NewBridge() *Bridge {
	b := &Bridge{work: make(chan bridgeJob), done: make(chan struct{})}
	go b.run()
	return b
}

func (b *Bridge) run() {
	for {
		select {
		case job := <-b.work:
			v, err := job.fn()
			job.resp <- bridgeResult{val: v, err: err}
		case <-b.done:
			return
		}
	}
}

// Join arranges for fn to run on the Bridge's dispatcher goroutine and
// blocks the calling goroutine until it completes, returning fn's result.
// Join is safe to call concurrently from many goroutines, including
// concurrently with Close: once the Bridge is closing, Join returns
// ErrClosedPeer instead of blocking forever or sending on a closed channel.
// Calls issued by the same goroutine are processed in the order they were
// issued, since a goroutine cannot issue a second Join until its first has
// returned.
func (b *Bridge) Join(fn func() (any, error)) (any, error) {
	resp := make(chan bridgeResult, 1)
	select {
	case b.work <- bridgeJob{fn: fn, resp: resp}:
	case <-b.done:
		return nil, ErrClosedPeer
	}
	select {
	case r := <-resp:
		return r.val, r.err
	case <-b.done:
		return nil, ErrClosedPeer
	}
}

// Close stops the Bridge's dispatcher goroutine. Idempotent and safe to
// call concurrently with Join: in-flight Joins observe b.done and return
// cleanly instead of blocking forever or sending on a closed channel.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}
