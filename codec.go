// Package dpx's codec implements spec.md §4.1: a Frame serializes to a
// self-describing packed array of exactly 7 elements. Grounded on
// mervinkid-matcha/net/tcp/codec/apollo.go, which layers msgpack over a
// framed payload in the same retrieval pack; msgpack's array encoding is
// self-describing (tagged length + per-element type tags) exactly as
// spec.md requires, and its Decoder streams over an io.Reader, blocking for
// more bytes mid-frame the way a TCP socket demands.
package dpx

import (
	"github.com/vmihailenco/msgpack/v5"
)

var _ msgpack.CustomEncoder = (*Frame)(nil)
var _ msgpack.CustomDecoder = (*Frame)(nil)

// EncodeMsgpack writes the frame as the 7-element array spec.md §4.1
// defines: type, channel, method, headers, error, last, payload.
func (f *Frame) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(7); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(f.Type)); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(f.Channel)); err != nil {
		return err
	}
	if err := encodeNullableString(enc, f.Method); err != nil {
		return err
	}
	if err := enc.EncodeMapLen(len(f.Headers)); err != nil {
		return err
	}
	for k, v := range f.Headers {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.EncodeString(v); err != nil {
			return err
		}
	}
	if err := encodeNullableString(enc, f.Error); err != nil {
		return err
	}
	if err := enc.EncodeBool(f.Last); err != nil {
		return err
	}
	return enc.EncodeBytes(f.Payload)
}

// DecodeMsgpack reads a Frame back from the wire, enforcing the §4.1
// invariant that the array size must equal 7.
func (f *Frame) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 7 {
		return ErrCodecBadArity
	}

	typ, err := dec.DecodeInt()
	if err != nil {
		return err
	}
	f.Type = FrameType(typ)

	channel, err := dec.DecodeInt()
	if err != nil {
		return err
	}
	f.Channel = channel

	if err = dec.Decode(&f.Method); err != nil {
		return err
	}

	headerLen, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	headers := make(map[string]string, maxInt(headerLen, 0))
	for i := 0; i < headerLen; i++ {
		k, err := dec.DecodeString()
		if err != nil {
			return err
		}
		v, err := dec.DecodeString()
		if err != nil {
			return err
		}
		headers[k] = v
	}
	f.Headers = headers

	if err = dec.Decode(&f.Error); err != nil {
		return err
	}

	if f.Last, err = dec.DecodeBool(); err != nil {
		return err
	}

	payload, err := dec.DecodeBytes()
	if err != nil {
		return err
	}
	f.Payload = payload
	return nil
}

func encodeNullableString(enc *msgpack.Encoder, s *string) error {
	if s == nil {
		return enc.EncodeNil()
	}
	return enc.EncodeString(*s)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
