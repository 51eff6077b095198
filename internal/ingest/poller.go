// ABOUTME: Long-poll loop pulling events for one bot token.
// ABOUTME: Persists the cursor only after the batch is enqueued downstream.

package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/chatflow/internal/remote"
)

// Sink receives fetched event batches. The dispatcher satisfies it.
type Sink interface {
	Enqueue(ctx context.Context, token string, events []remote.Event) error
}

// CursorStore is the slice of the store the poller needs.
type CursorStore interface {
	GetCursor(ctx context.Context, token string) (int64, error)
	PutCursor(ctx context.Context, token string, value int64) error
}

// Poller runs the fetch loop for a single bot token. The cursor is advanced
// after the batch is handed to the sink, so a crash between fetch and
// advance replays the batch rather than losing it.
type Poller struct {
	client  remote.Client
	store   CursorStore
	sink    Sink
	token   string
	timeout time.Duration
	backoff time.Duration
	logger  *slog.Logger
}

// NewPoller creates a poller for one token. timeout is the long-poll hold
// time passed to the platform; backoff is the pause after an empty fetch or
// a transport error.
func NewPoller(client remote.Client, st CursorStore, sink Sink, token string, timeout, backoff time.Duration) *Poller {
	return &Poller{
		client:  client,
		store:   st,
		sink:    sink,
		token:   token,
		timeout: timeout,
		backoff: backoff,
		logger:  slog.Default().With("component", "ingest"),
	}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller starting", "timeout", p.timeout)

	for {
		if ctx.Err() != nil {
			p.logger.Info("poller stopping")
			return
		}

		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("poller stopping")
				return
			}
			p.logger.Warn("poll failed", "error", err)
			p.sleep(ctx)
		}
	}
}

// pollOnce performs one fetch-enqueue-advance cycle.
func (p *Poller) pollOnce(ctx context.Context) error {
	cursor, err := p.store.GetCursor(ctx, p.token)
	if err != nil {
		return err
	}

	events, err := p.client.FetchEvents(ctx, p.token, cursor+1, p.timeout)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		p.sleep(ctx)
		return nil
	}

	maxID := events[0].ID
	for _, ev := range events[1:] {
		if ev.ID > maxID {
			maxID = ev.ID
		}
	}

	if err := p.sink.Enqueue(ctx, p.token, events); err != nil {
		return err
	}

	// The cursor moves only after the sink accepted the whole batch. A
	// failure here redelivers the batch on the next cycle.
	if err := p.store.PutCursor(ctx, p.token, maxID); err != nil {
		return err
	}

	p.logger.Debug("batch ingested", "events", len(events), "cursor", maxID)
	return nil
}

func (p *Poller) sleep(ctx context.Context) {
	timer := time.NewTimer(p.backoff)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
