package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zephyrtronium/playbot/deque"
	"github.com/zephyrtronium/playbot/metrics"
)

// mailbox is an unbounded FIFO of work for one plugin.
type mailbox struct {
	mu     sync.Mutex
	q      deque.Queue[func(context.Context)]
	closed bool
	// wake has capacity 1 and holds a value whenever the queue may have
	// changed since the runner last looked.
	wake chan struct{}
	// done is closed once the runner exits.
	done chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// push adds work to the mailbox. It reports false if the mailbox is closed.
func (mb *mailbox) push(work func(context.Context)) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.q = mb.q.Append(work)
	mb.mu.Unlock()
	mb.signal()
	return true
}

// close stops accepting work. Work already queued still runs.
func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()
	mb.signal()
}

func (mb *mailbox) signal() {
	select {
	case mb.wake <- struct{}{}:
	default:
	}
}

// pop removes the next work item.
func (mb *mailbox) pop() (work func(context.Context), ok, closed bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	work, mb.q, ok = mb.q.PopFront()
	return work, ok, mb.closed
}

// run executes work until the mailbox is closed and drained or ctx ends.
func (mb *mailbox) run(ctx context.Context, id ID, log *slog.Logger, latency metrics.Observer) {
	defer close(mb.done)
	for {
		work, ok, closed := mb.pop()
		if ok {
			start := time.Now()
			exec(ctx, log, work)
			latency.Observe(time.Since(start).Seconds(), string(id))
			continue
		}
		if closed {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-mb.wake:
		}
	}
}

// exec runs one work item. A panicking handler is logged and the plugin
// continues with its next event.
func exec(ctx context.Context, log *slog.Logger, work func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "handler panicked", slog.String("panic", fmt.Sprint(r)))
		}
	}()
	work(ctx)
}
