package framequeue

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/etvr-go/trackingd/internal/frame"
)

func newTestFrame(seq uint64) *frame.Frame {
	return frame.New(gocv.NewMat(), seq)
}

func TestQueue_PushPopOrder(t *testing.T) {
	q := New("test", 4, 0, zerolog.Nop())
	done := make(chan struct{})
	defer close(done)

	for i := uint64(0); i < 3; i++ {
		q.Push(newTestFrame(i))
	}

	for i := uint64(0); i < 3; i++ {
		f, ok := q.Pop(done)
		if !ok {
			t.Fatalf("expected a frame at index %d", i)
		}
		if f.Seq != i {
			t.Errorf("expected seq %d, got %d", i, f.Seq)
		}
		f.Close()
	}
}

func TestQueue_DropsOldestWhenFull(t *testing.T) {
	q := New("test", 2, 0, zerolog.Nop())
	done := make(chan struct{})
	defer close(done)

	q.Push(newTestFrame(0))
	q.Push(newTestFrame(1))
	q.Push(newTestFrame(2)) // should drop seq 0

	f, ok := q.Pop(done)
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Seq != 1 {
		t.Errorf("expected oldest surviving frame to be seq 1, got %d", f.Seq)
	}
	f.Close()
}

func TestQueue_FlushesAtHighWatermark(t *testing.T) {
	q := New("test", 10, 3, zerolog.Nop())
	done := make(chan struct{})
	defer close(done)

	q.Push(newTestFrame(0))
	q.Push(newTestFrame(1))
	q.Push(newTestFrame(2)) // depth now equals flushAt
	q.Push(newTestFrame(3)) // depth at flushAt: drops everything buffered, then enqueues

	if got := q.Len(); got != 1 {
		t.Fatalf("expected queue to hold exactly 1 frame after flush, got %d", got)
	}
	f, ok := q.Pop(done)
	if !ok {
		t.Fatal("expected a frame")
	}
	if f.Seq != 3 {
		t.Errorf("expected surviving frame to be seq 3, got %d", f.Seq)
	}
	f.Close()
}

func TestQueue_PopUnblocksOnDone(t *testing.T) {
	q := New("test", 2, 0, zerolog.Nop())
	done := make(chan struct{})

	result := make(chan bool, 1)
	go func() {
		_, ok := q.Pop(done)
		result <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	close(done)

	select {
	case ok := <-result:
		if ok {
			t.Error("expected Pop to return false after done was closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after done was closed")
	}
}

func TestQueue_CloseReleasesBufferedFrames(t *testing.T) {
	q := New("test", 4, 0, zerolog.Nop())
	q.Push(newTestFrame(0))
	q.Push(newTestFrame(1))

	q.Close()

	done := make(chan struct{})
	close(done)
	if _, ok := q.Pop(done); ok {
		t.Error("expected Pop to report no frames after Close")
	}

	// Push after Close should close the frame immediately rather than panic.
	q.Push(newTestFrame(2))
}
