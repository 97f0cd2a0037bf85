package dpx

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestFrameRoundTrip(t *testing.T) {
	f := NewFrame()
	f.Type = FrameData
	f.Channel = 7
	f.SetMethod("greet")
	f.SetHeader("trace-id", "abc123")
	f.Payload = []byte("hello")
	f.Last = true

	b, err := msgpack.Marshal(f)
	require.NoError(t, err)

	var out Frame
	require.NoError(t, msgpack.Unmarshal(b, &out))

	require.Equal(t, f.Type, out.Type)
	require.Equal(t, f.Channel, out.Channel)
	require.Equal(t, f.MethodOr(""), out.MethodOr(""))
	require.Equal(t, f.Payload, out.Payload)
	require.True(t, out.Last)
	require.Nil(t, out.Error)
	v, ok := out.Header("trace-id")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestFrameNilVsEmptyMethod(t *testing.T) {
	noMethod := NewFrame()
	b, err := msgpack.Marshal(noMethod)
	require.NoError(t, err)
	var out Frame
	require.NoError(t, msgpack.Unmarshal(b, &out))
	require.Nil(t, out.Method)

	emptyMethod := NewFrame()
	emptyMethod.SetMethod("")
	b, err = msgpack.Marshal(emptyMethod)
	require.NoError(t, err)
	out = Frame{}
	require.NoError(t, msgpack.Unmarshal(b, &out))
	require.NotNil(t, out.Method)
	require.Equal(t, "", *out.Method)
}

func TestFrameHasError(t *testing.T) {
	f := NewFrame()
	require.False(t, f.HasError())
	f.SetError("")
	require.False(t, f.HasError())
	f.SetError("boom")
	require.True(t, f.HasError())
}

func TestDecodeRejectsWrongArity(t *testing.T) {
	b, err := msgpack.Marshal([]int{1, 2, 3})
	require.NoError(t, err)
	var out Frame
	err = msgpack.Unmarshal(b, &out)
	require.ErrorIs(t, err, ErrCodecBadArity)
}

func TestFrameCopyIsIndependent(t *testing.T) {
	f := NewFrame()
	f.SetMethod("m")
	f.SetHeader("k", "v")
	f.Payload = []byte{1, 2, 3}

	cp := f.Copy()
	cp.SetMethod("other")
	cp.SetHeader("k", "changed")
	cp.Payload[0] = 9

	require.Equal(t, "m", f.MethodOr(""))
	v, _ := f.Header("k")
	require.Equal(t, "v", v)
	require.Equal(t, byte(1), f.Payload[0])
}
