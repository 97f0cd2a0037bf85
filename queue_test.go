package dpx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Send(i))
	}
	for i := 0; i < 4; i++ {
		v, ok := q.Recv()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestQueueTrySendFull(t *testing.T) {
	q := NewQueue[int](1)
	require.NoError(t, q.TrySend(1))
	require.ErrorIs(t, q.TrySend(2), ErrQueueFull)
}

func TestQueueTryRecvEmpty(t *testing.T) {
	q := NewQueue[int](1)
	_, err := q.TryRecv()
	require.ErrorIs(t, err, ErrQueueEmpty)
}

func TestQueueCloseWakesBlockedRecv(t *testing.T) {
	q := NewQueue[int](1)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Recv()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	q.Close()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up after Close")
	}
}

func TestQueueRendezvousBlocksSendUntilConsumed(t *testing.T) {
	q := NewQueue[int](0)
	sent := make(chan error, 1)
	go func() {
		sent <- q.Send(42)
	}()

	select {
	case <-sent:
		t.Fatal("Send on a depth-0 queue returned before Recv consumed the value")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := q.Recv()
	require.True(t, ok)
	require.Equal(t, 42, v)

	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after Recv")
	}
}

func TestQueueSendAfterCloseFails(t *testing.T) {
	q := NewQueue[int](1)
	q.Close()
	require.ErrorIs(t, q.Send(1), ErrClosedQueue)
}

func TestMailboxOverwrite(t *testing.T) {
	m := newMailbox[int]()
	m.Publish(1)
	m.Publish(2)
	v, ok := m.TryRecv()
	require.True(t, ok)
	require.Equal(t, 2, v)

	_, ok = m.TryRecv()
	require.False(t, ok)
}

func TestMailboxCloseWakesRecv(t *testing.T) {
	m := newMailbox[int]()
	done := make(chan bool, 1)
	go func() {
		_, ok := m.Recv()
		done <- ok
	}()
	time.Sleep(20 * time.Millisecond)
	m.Close()
	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up after Close")
	}
}
