package queue

import "testing"

type fakeGauge struct {
	last int64
	n    int
}

func (f *fakeGauge) SetQueueDepth(depth int64) {
	f.last = depth
	f.n++
}

func TestEnqueueDequeue(t *testing.T) {
	g := &fakeGauge{}
	q := New(2, g)

	q.Enqueue(WorkItem{Filename: "a"})
	q.Enqueue(WorkItem{Filename: "b"})

	if got := q.Depth(); got != 2 {
		t.Fatalf("Depth() = %d, want 2", got)
	}
	if g.last != 2 {
		t.Errorf("gauge = %d, want 2", g.last)
	}

	first := <-q.Dequeue()
	if first.Filename != "a" {
		t.Errorf("expected FIFO order, got %q first", first.Filename)
	}
	q.Complete()

	if got := q.Depth(); got != 1 {
		t.Fatalf("Depth() = %d, want 1", got)
	}
	if g.last != 1 {
		t.Errorf("gauge = %d, want 1", g.last)
	}
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := New(1, nil)
	q.Enqueue(WorkItem{Filename: "a"})

	done := make(chan struct{})
	go func() {
		q.Enqueue(WorkItem{Filename: "b"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Enqueue should have blocked on a full queue")
	default:
	}

	<-q.Dequeue()
	q.Complete()
	<-done
}

func TestNilGaugeIsSafe(t *testing.T) {
	q := New(1, nil)
	q.Enqueue(WorkItem{Filename: "a"})
	<-q.Dequeue()
	q.Complete()
}
