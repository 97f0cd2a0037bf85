package dpx

// FrameType distinguishes an OPEN frame (creates a channel) from a DATA
// frame (carries an ordinary payload on an already-open channel).
type FrameType int

const (
	FrameOpen FrameType = iota
	FrameData
)

func (t FrameType) String() string {
	if t == FrameOpen {
		return "OPEN"
	}
	return "DATA"
}

// NoChannel is the sentinel channel id for a Frame not yet bound to a
// channel (spec.md §3: "NONE = -1 when not yet bound").
const NoChannel = -1

// Frame is the atomic message unit described in spec.md §3: a 7-tuple of
// type, channel id, method, headers, error, last, and payload. Method and
// Error are pointers so that nil (absent) is distinguishable from an empty
// string, per spec.md §9's normative codec resolution.
//
// replyCh is not set anywhere in this package: a DuplexConn's writer keeps
// each frame's single-shot write-result channel beside the frame in an
// outboundItem (see duplexconn.go). replyCh is never copied (see Copy) and
// never serialized (see codec.go).
type Frame struct {
	Type    FrameType
	Channel int
	Method  *string
	Headers map[string]string
	Error   *string
	Last    bool
	Payload []byte

	replyCh chan error
}

// NewFrame returns an empty Frame with a non-nil, empty Headers map, ready
// for use. Matches the spec's frame_new(); frame_free has no Go analogue
// since Frames are garbage collected (see Free).
func NewFrame() *Frame {
	return &Frame{Headers: make(map[string]string)}
}

// Free is a no-op kept for ABI-naming parity with spec.md's frame_free.
// Go's garbage collector reclaims a Frame once nothing references it.
func (f *Frame) Free() {}

// Copy deep-copies src into a freshly allocated Frame (frame_copy in
// spec.md §6). The in-flight reply channel is never copied: a copy is a new
// value with no pending write of its own.
func (f *Frame) Copy() *Frame {
	if f == nil {
		return nil
	}
	cp := &Frame{
		Type:    f.Type,
		Channel: f.Channel,
		Last:    f.Last,
	}
	if f.Method != nil {
		m := *f.Method
		cp.Method = &m
	}
	if f.Error != nil {
		e := *f.Error
		cp.Error = &e
	}
	if f.Headers != nil {
		cp.Headers = make(map[string]string, len(f.Headers))
		for k, v := range f.Headers {
			cp.Headers[k] = v
		}
	} else {
		cp.Headers = make(map[string]string)
	}
	if f.Payload != nil {
		cp.Payload = append([]byte(nil), f.Payload...)
	}
	return cp
}

// SetMethod sets the frame's method string.
func (f *Frame) SetMethod(m string) { f.Method = &m }

// MethodOr returns the frame's method, or def if it is absent (nil).
func (f *Frame) MethodOr(def string) string {
	if f.Method == nil {
		return def
	}
	return *f.Method
}

// SetError sets the frame's terminal error string.
func (f *Frame) SetError(msg string) { f.Error = &msg }

// HasError reports whether the frame carries a non-empty error string.
// Matches spec.md §4.3/§4.4's repeated test: "a non-empty error".
func (f *Frame) HasError() bool { return f.Error != nil && *f.Error != "" }

// SetHeader adds or overwrites a header (spec.md §6 frame_header_add).
func (f *Frame) SetHeader(key, value string) {
	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	f.Headers[key] = value
}

// Header looks up a header by key (spec.md §6 frame_header_find).
func (f *Frame) Header(key string) (string, bool) {
	v, ok := f.Headers[key]
	return v, ok
}

// RemoveHeader deletes a header by key (spec.md §6 frame_header_remove).
func (f *Frame) RemoveHeader(key string) {
	delete(f.Headers, key)
}

// HeaderLen returns the number of headers (spec.md §6 frame_header_len).
func (f *Frame) HeaderLen() int { return len(f.Headers) }

// IterHeaders calls fn for every header key/value pair (spec.md §6
// frame_header_iter), grounded on
// mervinkid-matcha/net/tcp/peer/channel.go's context-map accessor style.
func (f *Frame) IterHeaders(fn func(key, value string)) {
	for k, v := range f.Headers {
		fn(k, v)
	}
}
