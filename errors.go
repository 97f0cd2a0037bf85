package dpx

import "fmt"

// ErrorCode is the numeric error taxonomy from the DPX wire/ABI contract.
// These values are part of the ABI and must not be renumbered.
type ErrorCode int

const (
	ErrNone              ErrorCode = 0
	ErrFreeing           ErrorCode = 1
	ErrChanClosed        ErrorCode = 10
	ErrChanFrame         ErrorCode = 11
	ErrNetworkFail       ErrorCode = 20
	ErrNetworkNotAll     ErrorCode = 21
	ErrPeerAlreadyClosed ErrorCode = 30
	ErrDuplexClosed      ErrorCode = 40
	ErrFatal             ErrorCode = -50
)

func (c ErrorCode) String() string {
	switch c {
	case ErrNone:
		return "none"
	case ErrFreeing:
		return "freeing"
	case ErrChanClosed:
		return "chan_closed"
	case ErrChanFrame:
		return "chan_frame"
	case ErrNetworkFail:
		return "network_fail"
	case ErrNetworkNotAll:
		return "network_notall"
	case ErrPeerAlreadyClosed:
		return "peer_alreadyclosed"
	case ErrDuplexClosed:
		return "duplex_closed"
	case ErrFatal:
		return "fatal"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// codeError adapts an ErrorCode to the error interface for callers that
// prefer Go's normal error-handling idiom over checking a raw ErrorCode.
type codeError struct{ code ErrorCode }

func (e *codeError) Error() string { return "dpx: " + e.code.String() }

// Err returns an error wrapping code, or nil if code is ErrNone.
func Err(code ErrorCode) error {
	if code == ErrNone {
		return nil
	}
	return &codeError{code: code}
}

// CodeOf extracts the ErrorCode from an error produced by Err, or ErrFatal
// if err is non-nil but was not produced by this package.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrNone
	}
	if ce, ok := err.(*codeError); ok {
		return ce.code
	}
	return ErrFatal
}

// Sentinel errors for the ambient (non-ABI) error-handling surface, in the
// teacher's style of package-level sentinel vars wrapped with fmt.Errorf.
var (
	ErrClosedQueue    = &codeError{code: ErrChanClosed}
	ErrClosedDuplex   = &codeError{code: ErrDuplexClosed}
	ErrClosedPeer     = &codeError{code: ErrPeerAlreadyClosed}
	ErrQueueFull      = fmt.Errorf("dpx: queue full")
	ErrQueueEmpty     = fmt.Errorf("dpx: queue empty")
	ErrCodecBadArity  = fmt.Errorf("dpx: frame array must have exactly 7 elements")
	ErrInvalidAddress = fmt.Errorf("dpx: invalid address")
)
