package capture

import (
	"context"
	"sync"

	"github.com/MrWong99/zentra/internal/segment"
)

// worker post-processes segments one at a time in arrival order. push never
// blocks, so capture keeps running while a slow transcription is in flight.
type worker struct {
	mu      sync.Mutex
	queue   []*segment.Segment
	wake    chan struct{}
	stopped chan struct{}
	dropped int
}

func startWorker(ctx context.Context, fn func(context.Context, *segment.Segment)) *worker {
	w := &worker{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go w.run(ctx, fn)
	return w
}

func (w *worker) push(seg *segment.Segment) {
	w.mu.Lock()
	w.queue = append(w.queue, seg)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *worker) pop() *segment.Segment {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) == 0 {
		return nil
	}
	seg := w.queue[0]
	w.queue[0] = nil
	w.queue = w.queue[1:]
	return seg
}

// pending returns the number of queued segments not yet started.
func (w *worker) pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *worker) run(ctx context.Context, fn func(context.Context, *segment.Segment)) {
	defer close(w.stopped)
	for {
		for ctx.Err() == nil {
			seg := w.pop()
			if seg == nil {
				break
			}
			fn(ctx, seg)
		}
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.dropped = len(w.queue)
			w.queue = nil
			w.mu.Unlock()
			return
		case <-w.wake:
		}
	}
}

// wait blocks until the worker exited and returns how many queued segments
// were never processed. The worker's context must already be cancelled.
func (w *worker) wait() int {
	if w == nil {
		return 0
	}
	<-w.stopped
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}
