// ABOUTME: Tests for the sharded event dispatcher.
// ABOUTME: Validates per-conversation ordering, cross-conversation concurrency, and dedupe.

package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatflow/internal/dedupe"
	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/remote"
)

// recordingHandler collects handled event ids, optionally blocking until
// released to test concurrency.
type recordingHandler struct {
	mu      sync.Mutex
	byKey   map[int64][]int64
	all     []int64
	ctxErrs []error
	block   chan struct{}
	started chan int64
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{byKey: make(map[int64][]int64)}
}

func (h *recordingHandler) Handle(ctx context.Context, token string, m *fsm.Machine, ev remote.Event) error {
	if h.started != nil {
		h.started <- ev.UserID
	}
	if h.block != nil {
		<-h.block
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.byKey[ev.UserID] = append(h.byKey[ev.UserID], ev.ID)
	h.all = append(h.all, ev.ID)
	h.ctxErrs = append(h.ctxErrs, ctx.Err())
	return nil
}

func (h *recordingHandler) handled(userID int64) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.byKey[userID]))
	copy(out, h.byKey[userID])
	return out
}

func event(id, userID int64) remote.Event {
	return remote.Event{ID: id, UserID: userID, ChatID: userID * 10, MessageID: id,
		Kind: remote.KindText, Text: "hello"}
}

func TestDispatcher_SameConversationStaysOrdered(t *testing.T) {
	handler := newRecordingHandler()
	d := New(handler, nil, 8, 64)
	d.Register("tok", &fsm.Machine{Name: "noop"})

	ctx := context.Background()
	d.Start(ctx)

	events := make([]remote.Event, 0, 50)
	for i := int64(1); i <= 50; i++ {
		events = append(events, event(i, 7))
	}
	require.NoError(t, d.Enqueue(ctx, "tok", events))
	d.Stop()

	got := handler.handled(7)
	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i], "events for one conversation arrive in order")
	}
}

func TestDispatcher_DistinctConversationsRunConcurrently(t *testing.T) {
	handler := newRecordingHandler()
	handler.block = make(chan struct{})
	handler.started = make(chan int64, 2)

	// User ids chosen so the two conversations hash to different workers.
	d := New(handler, nil, 16, 4)
	d.Register("tok", &fsm.Machine{Name: "noop"})

	ctx := context.Background()
	d.Start(ctx)

	userA, userB := pickDistinctShards(d, "tok")
	require.NoError(t, d.Enqueue(ctx, "tok", []remote.Event{event(1, userA)}))
	require.NoError(t, d.Enqueue(ctx, "tok", []remote.Event{event(2, userB)}))

	// Both workers enter their handler while neither has finished.
	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-handler.started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("second conversation never started; workers are serialized")
		}
	}
	assert.True(t, seen[userA] && seen[userB])

	close(handler.block)
	d.Stop()
}

// pickDistinctShards finds two user ids whose conversations map to
// different workers.
func pickDistinctShards(d *Dispatcher, token string) (int64, int64) {
	first := d.shard(token, event(0, 1))
	for id := int64(2); ; id++ {
		if d.shard(token, event(0, id)) != first {
			return 1, id
		}
	}
}

func TestDispatcher_DuplicateEventsDropped(t *testing.T) {
	handler := newRecordingHandler()
	cache := dedupe.New(time.Minute, 100)
	defer cache.Close()

	d := New(handler, cache, 4, 16)
	d.Register("tok", &fsm.Machine{Name: "noop"})

	ctx := context.Background()
	d.Start(ctx)

	batch := []remote.Event{event(1, 7), event(2, 7)}
	require.NoError(t, d.Enqueue(ctx, "tok", batch))
	// Redelivery of the same batch after a simulated poller restart
	require.NoError(t, d.Enqueue(ctx, "tok", batch))
	d.Stop()

	assert.Equal(t, []int64{1, 2}, handler.handled(7))
}

func TestDispatcher_UnknownTokenRefused(t *testing.T) {
	d := New(newRecordingHandler(), nil, 1, 1)
	d.Start(context.Background())
	defer d.Stop()

	err := d.Enqueue(context.Background(), "unregistered", []remote.Event{event(1, 1)})
	assert.Error(t, err)
}

func TestDispatcher_DrainCompletesAfterShutdownSignal(t *testing.T) {
	handler := newRecordingHandler()
	handler.block = make(chan struct{})
	handler.started = make(chan int64, 1)

	d := New(handler, nil, 1, 8)
	d.Register("tok", &fsm.Machine{Name: "noop"})

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	require.NoError(t, d.Enqueue(context.Background(), "tok", []remote.Event{event(1, 7), event(2, 7)}))
	<-handler.started

	// Shutdown arrives while both events are still in flight. The drain must
	// hand the worker a live context or the queued transitions all fail.
	cancel()
	close(handler.block)
	d.Stop()

	assert.Equal(t, []int64{1, 2}, handler.handled(7))
	handler.mu.Lock()
	defer handler.mu.Unlock()
	for _, err := range handler.ctxErrs {
		assert.NoError(t, err, "drained events run under an uncancelled context")
	}
}

func TestDispatcher_EnqueueHonorsCancellation(t *testing.T) {
	handler := newRecordingHandler()
	handler.block = make(chan struct{})

	d := New(handler, nil, 1, 1)
	d.Register("tok", &fsm.Machine{Name: "noop"})
	d.Start(context.Background())
	defer d.Stop()
	defer close(handler.block)

	// Fill the worker and its queue so the next enqueue would block.
	go d.Enqueue(context.Background(), "tok", []remote.Event{event(1, 7), event(2, 7)})
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := d.Enqueue(ctx, "tok", []remote.Event{event(3, 7)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
