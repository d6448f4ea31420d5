package record

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memSink collects snapshots. If gate is set every Write waits on it.
type memSink struct {
	gate   chan struct{}
	failOn int

	mu      sync.Mutex
	opened  bool
	closed  bool
	written []int
}

func (s *memSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

func (s *memSink) Write(snap Snapshot) error {
	if s.gate != nil {
		<-s.gate
	}
	if s.failOn != 0 && snap.Seq == s.failOn {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, snap.Seq)
	return nil
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRecorderDrainsInOrderOnClose(t *testing.T) {
	sink := &memSink{gate: make(chan struct{})}
	r := NewRecorder(sink, zaptest.NewLogger(t).Sugar())
	require.NoError(t, r.Start())

	// The consumer is stuck on the first write; enqueueing must not wait.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			assert.NoError(t, r.Enqueue(Snapshot{Seq: i}))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a slow sink")
	}
	assert.GreaterOrEqual(t, r.Len(), 199)

	close(sink.gate)
	require.NoError(t, r.Close())

	want := make([]int, 200)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, sink.written)
	assert.True(t, sink.closed)
	assert.Equal(t, 0, r.Len())
}

func TestRecorderEnqueueAfterClose(t *testing.T) {
	r := NewRecorder(&memSink{}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, r.Start())
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Enqueue(Snapshot{}), ErrClosed)
	// Closing twice is harmless.
	assert.NoError(t, r.Close())
}

func TestRecorderCloseWithoutStart(t *testing.T) {
	sink := &memSink{}
	r := NewRecorder(sink, zaptest.NewLogger(t).Sugar())

	require.NoError(t, r.Close())
	assert.False(t, sink.opened)
	assert.False(t, sink.closed)
}

func TestRecorderKeepsDrainingAfterWriteError(t *testing.T) {
	sink := &memSink{failOn: 2}
	r := NewRecorder(sink, zaptest.NewLogger(t).Sugar())
	require.NoError(t, r.Start())

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Enqueue(Snapshot{Seq: i}))
	}
	err := r.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, []int{0, 1, 3, 4}, sink.written)
	assert.True(t, sink.closed)
}

func TestQueueCloseReleasesWaitingConsumer(t *testing.T) {
	q := newQueue()
	got := make(chan bool)
	go func() {
		_, ok := q.pop()
		got <- ok
	}()

	q.close()
	select {
	case ok := <-got:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("pop did not return after close")
	}
}
