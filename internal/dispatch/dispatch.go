// ABOUTME: Dispatcher fanning polled events out to sharded workers.
// ABOUTME: Events for the same conversation always land on the same worker.

package dispatch

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"sync"

	"github.com/2389/chatflow/internal/dedupe"
	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/remote"
)

// Handler processes one event through a conversation machine. *fsm.Engine
// satisfies it.
type Handler interface {
	Handle(ctx context.Context, token string, m *fsm.Machine, ev remote.Event) error
}

type task struct {
	token string
	event remote.Event
}

// Dispatcher routes events to a fixed set of workers. The worker for an
// event is chosen by hashing its conversation key, so events of one
// conversation are processed in arrival order while distinct conversations
// run concurrently.
type Dispatcher struct {
	handler  Handler
	cache    *dedupe.Cache
	logger   *slog.Logger
	machines map[string]*fsm.Machine

	queues []chan task
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a dispatcher with the given worker count and per-worker queue
// size. Register the token-to-machine bindings before Start.
func New(handler Handler, cache *dedupe.Cache, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	queues := make([]chan task, workers)
	for i := range queues {
		queues[i] = make(chan task, queueSize)
	}

	return &Dispatcher{
		handler:  handler,
		cache:    cache,
		logger:   slog.Default().With("component", "dispatch"),
		machines: make(map[string]*fsm.Machine),
		queues:   queues,
	}
}

// Register binds a bot token to the conversation machine that serves it.
// Must be called before Start.
func (d *Dispatcher) Register(token string, m *fsm.Machine) {
	d.machines[token] = m
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	// Workers run detached from ctx's cancellation so the Stop drain can
	// finish in-flight transitions after a shutdown signal; an event whose
	// cursor already advanced would otherwise be lost. Stop ends the workers
	// by closing the queues.
	workCtx := context.WithoutCancel(ctx)
	for i, queue := range d.queues {
		d.wg.Add(1)
		go d.work(workCtx, i, queue)
	}
}

// Enqueue hands a batch of events to the workers. It blocks when the target
// queue is full, pushing backpressure onto the poller, and returns early if
// ctx is cancelled. Duplicate events within the dedupe window are dropped
// here.
func (d *Dispatcher) Enqueue(ctx context.Context, token string, events []remote.Event) error {
	if _, ok := d.machines[token]; !ok {
		return fmt.Errorf("no machine registered for token")
	}

	for _, ev := range events {
		if d.cache != nil && d.cache.Seen(token, ev.ID) {
			d.logger.Debug("dropping duplicate event", "event", ev.ID)
			continue
		}

		select {
		case d.queues[d.shard(token, ev)] <- task{token: token, event: ev}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// shard maps an event's conversation key to a worker index.
func (d *Dispatcher) shard(token string, ev remote.Event) int {
	h := fnv.New32a()
	h.Write([]byte(token))
	h.Write([]byte(strconv.FormatInt(ev.UserID, 10)))
	h.Write([]byte(strconv.FormatInt(ev.ChatID, 10)))
	return int(h.Sum32() % uint32(len(d.queues)))
}

func (d *Dispatcher) work(ctx context.Context, id int, queue chan task) {
	defer d.wg.Done()

	for t := range queue {
		m := d.machines[t.token]
		if err := d.handler.Handle(ctx, t.token, m, t.event); err != nil {
			d.logger.Error("event handling failed",
				"worker", id, "event", t.event.ID, "error", err)
		}
	}
}

// Stop closes the queues and waits for the workers to drain them. The
// dispatcher cannot be restarted after Stop.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		d.wg.Wait()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	for _, queue := range d.queues {
		close(queue)
	}
	d.wg.Wait()
}
