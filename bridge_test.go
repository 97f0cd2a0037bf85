package dpx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBridgeSerializesConcurrentJoins(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	counter := 0
	var wg sync.WaitGroup
	const n = 200
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			v, err := b.Join(func() (any, error) {
				counter++
				return counter, nil
			})
			require.NoError(t, err)
			require.Greater(t, v.(int), 0)
		}()
	}
	wg.Wait()
	require.Equal(t, n, counter)
}

func TestBridgeReturnsError(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	_, err := b.Join(func() (any, error) {
		return nil, ErrInvalidAddress
	})
	require.ErrorIs(t, err, ErrInvalidAddress)
}

// TestBridgeJoinDuringCloseNeverPanics races Join against Close: Join must
// return ErrClosedPeer instead of sending on (or receiving from) a closed
// channel.
func TestBridgeJoinDuringCloseNeverPanics(t *testing.T) {
	b := NewBridge()

	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := b.Join(func() (any, error) { return nil, nil })
			if err != nil {
				require.ErrorIs(t, err, ErrClosedPeer)
			}
		}()
	}
	b.Close()
	wg.Wait()
}
