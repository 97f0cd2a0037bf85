package dpx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrRoundTripsThroughCodeOf(t *testing.T) {
	for _, code := range []ErrorCode{ErrNone, ErrChanClosed, ErrNetworkFail, ErrFatal} {
		require.Equal(t, code, CodeOf(Err(code)))
	}
}

func TestErrNoneIsNilError(t *testing.T) {
	require.NoError(t, Err(ErrNone))
}

func TestCodeOfForeignErrorIsFatal(t *testing.T) {
	require.Equal(t, ErrFatal, CodeOf(ErrInvalidAddress))
}

func TestErrorCodeString(t *testing.T) {
	require.Equal(t, "chan_closed", ErrChanClosed.String())
	require.Contains(t, ErrorCode(999).String(), "999")
}
