// Package circulation implements the work queue (C14) that fans
// librarian operations (extraction, compendium building, reorganization)
// out to single-consumer-per-topic handlers, the way a library's
// circulation desk processes one request at a time per patron record.
package circulation

import (
	"context"
	"log/slog"
	"sync"
)

// Kind identifies which endpoint enqueued an item.
type Kind string

const (
	KindExtraction   Kind = "extraction"
	KindCompendium   Kind = "compendium"
	KindReorganize   Kind = "reorganize"
)

// Item is one unit of queued work.
type Item struct {
	Kind  Kind
	Topic string
	Run   func(ctx context.Context) error
}

// Desk is a queue with topic-serialized processing: two items for the same
// topic never run concurrently, but items for different topics may. The
// queue has no capacity limit; enqueueing never blocks or rejects an item.
type Desk struct {
	log *slog.Logger

	mu      sync.Mutex
	queue   []Item
	cond    *sync.Cond
	busy    map[string]bool
	closed  bool
	workers sync.WaitGroup
}

// New creates an empty Desk that logs through logger (slog.Default() when
// nil). The queue it creates is bounded only by memory.
func New(logger *slog.Logger) *Desk {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Desk{log: logger, busy: make(map[string]bool)}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Enqueue adds item to the queue. It is safe to call concurrently from any
// of the three endpoints (extraction, compendium, reorganization).
func (d *Desk) Enqueue(item Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, item)
	d.cond.Broadcast()
}

// Run starts n worker goroutines that process items until the desk is
// disposed. Each worker enforces single-consumer-per-topic by skipping
// (and requeuing) items whose topic is already being processed.
func (d *Desk) Run(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		d.workers.Add(1)
		go d.worker(ctx)
	}
}

func (d *Desk) worker(ctx context.Context) {
	defer d.workers.Done()

	for {
		item, ok := d.next(ctx)
		if !ok {
			return
		}

		err := item.Run(ctx)

		d.mu.Lock()
		delete(d.busy, item.Topic)
		d.cond.Broadcast()
		d.mu.Unlock()

		if err != nil {
			d.log.Warn("circulation_item_failed",
				slog.String("kind", string(item.Kind)),
				slog.String("topic", item.Topic),
				slog.String("error", err.Error()))
		}
	}
}

// next blocks until an eligible item (whose topic isn't already in
// progress) is available, the desk is closed and empty, or ctx is done.
func (d *Desk) next(ctx context.Context) (Item, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return Item{}, false
		default:
		}

		for i, item := range d.queue {
			if d.busy[item.Topic] {
				continue
			}
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			d.busy[item.Topic] = true
			return item, true
		}

		if d.closed {
			return Item{}, false
		}

		d.cond.Wait()
	}
}

// Drain blocks until the queue is empty and no item is in flight.
func (d *Desk) Drain() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || len(d.busy) > 0 {
		d.cond.Wait()
	}
}

// Flush processes every currently-queued item synchronously in the caller,
// one pass, ignoring the topic-exclusivity rule (there are no concurrent
// workers to race with during a synchronous flush).
func (d *Desk) Flush(ctx context.Context) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, item := range pending {
		if err := item.Run(ctx); err != nil {
			d.log.Warn("circulation_flush_item_failed",
				slog.String("kind", string(item.Kind)),
				slog.String("topic", item.Topic),
				slog.String("error", err.Error()))
		}
	}
}

// Dispose closes the desk, wakes blocked workers, and waits for them to
// exit.
func (d *Desk) Dispose() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()

	d.workers.Wait()
}
