package pool

import (
	"sync"
	"testing"
	"time"
)

// block submits a Task that waits on a channel before finishing, so
// the caller controls exactly how long it occupies its worker.
func block(started chan<- struct{}, release <-chan struct{}) Task {
	return func() {
		if started != nil {
			started <- struct{}{}
		}
		<-release
	}
}

func TestLeastLoadedPlacement(t *testing.T) {
	p := New(nil)
	p.Run(3)
	defer p.Stop(3)

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{}, 3)
	// Occupy all three workers so their queues are empty but busy,
	// then queue one more task each to get queue length 1 uniformly.
	for i := 0; i < 3; i++ {
		p.Submit(block(started, release))
	}
	for i := 0; i < 3; i++ {
		<-started
	}
	for i := 0; i < 3; i++ {
		p.Submit(func() {})
	}

	deadline := time.After(time.Second)
	for p.TasksCount() != 3 {
		select {
		case <-deadline:
			t.Fatalf("TasksCount() never reached 3, got %d", p.TasksCount())
		default:
		}
	}

	p.Submit(func() {})

	// One worker now has 2 queued, the rest still have 1.
	sawTwo := false
	for _, w := range p.workers {
		l := w.queueLen()
		if l == 2 {
			sawTwo = true
			continue
		}
		if l != 1 {
			t.Fatalf("queue length = %d, want 1 or 2", l)
		}
	}
	if !sawTwo {
		t.Fatal("no worker reached queue length 2")
	}
}

func TestSubmitToEmptyPoolRunsSynchronously(t *testing.T) {
	p := New(nil)
	var ran bool
	p.Submit(func() { ran = true })
	if !ran {
		t.Fatal("Submit on an empty pool should run the task synchronously")
	}
}

func TestStopRedistributesQueuedTasks(t *testing.T) {
	p := New(nil)
	p.Run(2)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	p.Submit(block(started, release))
	<-started

	var mu sync.Mutex
	ran := 0
	p.Submit(func() {
		mu.Lock()
		ran++
		mu.Unlock()
	})

	// Stop the busy worker (index 0): its queued task must migrate to
	// worker 1 rather than being lost.
	close(release)
	p.Stop(1)

	deadline := time.After(time.Second)
	for {
		mu.Lock()
		got := ran
		mu.Unlock()
		if got == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("redistributed task never ran")
		default:
		}
	}

	p.Stop(1)
}

type countingMetrics struct {
	mu        sync.Mutex
	abandoned int
}

func (m *countingMetrics) TaskAbandoned(n int) {
	m.mu.Lock()
	m.abandoned += n
	m.mu.Unlock()
}

func TestStopAllAbandonsRemainingTasks(t *testing.T) {
	metrics := &countingMetrics{}
	p := New(metrics)
	p.Run(1)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p.Submit(block(started, release))
	<-started
	p.Submit(func() {})
	p.Submit(func() {})

	close(release)
	p.Stop(1)

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if metrics.abandoned != 2 {
		t.Fatalf("abandoned = %d, want 2", metrics.abandoned)
	}
}
