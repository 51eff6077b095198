// ABOUTME: Engine executes one FSM transition end to end
// ABOUTME: Load state, apply rules and policy, persist, then send

package fsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// Engine drives machines against the store and the remote client. One engine
// serves every machine; per-key serialization is the dispatcher's job.
type Engine struct {
	store   store.Store
	client  remote.Client
	catalog *i18n.Catalog
	logger  *slog.Logger
}

// NewEngine creates an engine over the given store, client and catalog.
func NewEngine(st store.Store, client remote.Client, catalog *i18n.Catalog) *Engine {
	return &Engine{
		store:   st,
		client:  client,
		catalog: catalog,
		logger:  slog.Default().With("component", "fsm"),
	}
}

// Handle processes one event for one conversation key.
//
// Ordering of durable steps matters for at-least-once semantics: effects are
// applied first, then the state row, and only then is anything sent. If any
// store write fails the response is not sent and the error propagates, so
// the event counts as unprocessed and may be redelivered. Transitions are
// pure functions of (state, event), so reprocessing converges; a duplicate
// outbound message is tolerated over desynchronized state.
func (e *Engine) Handle(ctx context.Context, token string, m *Machine, ev remote.Event) error {
	key := store.ConversationKey{UserID: ev.UserID, ChatID: ev.ChatID, Conversation: m.Name}

	prefs, err := e.store.GetPreferences(ctx, key.UserID)
	if err != nil {
		return fmt.Errorf("loading preferences: %w", err)
	}

	c := &Context{
		Token: token,
		Key:   key,
		Prefs: prefs,
		Loc:   e.catalog.For(prefs.Language),
		Store: e.store,
	}

	row, err := e.store.GetState(ctx, key, m.Initial)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	st := State{Code: row.Code, Aux: row.Aux}

	outcome, err := e.decide(ctx, c, m, st, ev)
	if err != nil {
		return fmt.Errorf("transition %s state %d: %w", m.Name, st.Code, err)
	}

	for _, effect := range outcome.Effects {
		if err := effect.Apply(ctx, e.store); err != nil {
			return fmt.Errorf("applying effect: %w", err)
		}
	}

	// Prompt correlation ids from an earlier turn must not leak into states
	// that are not awaiting a reply; handlers set aux explicitly.
	if err := e.store.SetState(ctx, key, outcome.Next.Code, outcome.Next.Aux); err != nil {
		return fmt.Errorf("persisting state: %w", err)
	}

	return e.send(ctx, c, m, outcome)
}

// decide applies the uniform edge-case policy around the machine's table.
func (e *Engine) decide(ctx context.Context, c *Context, m *Machine, st State, ev remote.Event) (Outcome, error) {
	if IsCancel(ev) {
		return Outcome{
			Next: State{Code: m.Initial},
			Responses: []Response{{
				Text:     c.Loc.T("cancelled"),
				Keyboard: e.menuFor(ctx, c, m, m.Initial),
			}},
		}, nil
	}

	for _, rule := range m.Rules[st.Code] {
		if rule.When(ctx, c, st, ev) {
			return rule.Do(ctx, c, st, ev)
		}
	}

	// Unrecognized input: re-send the options for the current state, state
	// and aux unchanged so a pending prompt stays answerable. In a free-input
	// state with no correlation id on record the reprompt is itself a prompt,
	// so a lost id is re-armed by the next send instead of stranding the user.
	rearm := st.Code != m.Initial && st.Aux.PromptID == 0 &&
		m.Menu != nil && m.Menu(ctx, c, st.Code) == nil
	return Outcome{
		Next: st,
		Responses: []Response{{
			Text:       c.Loc.T("unrecognized"),
			Keyboard:   e.menuFor(ctx, c, m, st.Code),
			AwaitReply: rearm,
		}},
	}, nil
}

func (e *Engine) menuFor(ctx context.Context, c *Context, m *Machine, code int) [][]string {
	if m.Menu == nil {
		return nil
	}
	if kb := m.Menu(ctx, c, code); kb != nil {
		return kb
	}
	return m.Menu(ctx, c, m.Initial)
}

// send delivers the outcome's responses in order. The first prompt response
// gets its sent message id written back into aux so the reply correlates.
//
// A failed send never aborts the remaining responses; fan-out to many chats
// must reach every reachable recipient. Per response, a gone recipient gets
// its push state cleaned up, a malformed send is logged and dropped since
// retrying cannot fix it, and any other error is collected and returned so
// the event is redelivered.
func (e *Engine) send(ctx context.Context, c *Context, m *Machine, outcome Outcome) error {
	promptRecorded := false
	var errs []error

	for _, resp := range outcome.Responses {
		chatID := resp.ChatID
		if chatID == 0 {
			chatID = c.Key.ChatID
		}

		msgID, err := e.sendOne(ctx, c, chatID, resp)
		if err != nil {
			switch {
			case errors.Is(err, remote.ErrRecipientGone):
				if cerr := e.cleanupUnreachable(ctx, c, m, chatID); cerr != nil {
					errs = append(errs, cerr)
				}
			case errors.Is(err, remote.ErrMalformed):
				e.logger.Error("dropping malformed send",
					"conversation", m.Name, "chat", chatID, "error", err)
			default:
				errs = append(errs, err)
			}
			continue
		}

		if resp.AwaitReply && !promptRecorded {
			promptRecorded = true
			aux := outcome.Next.Aux
			aux.PromptID = msgID
			// A failure here loses only the correlation id; the reply will
			// read as unrecognized input and the user gets reprompted.
			if err := e.store.SetState(ctx, c.Key, outcome.Next.Code, aux); err != nil {
				e.logger.Warn("recording prompt id failed", "conversation", m.Name, "error", err)
			}
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) sendOne(ctx context.Context, c *Context, chatID int64, resp Response) (int64, error) {
	if resp.Document != nil {
		return 0, e.client.SendDocument(ctx, c.Token, chatID, *resp.Document, nil)
	}
	opts := &remote.SendOptions{Keyboard: resp.Keyboard, ForceReply: resp.AwaitReply}
	return e.client.SendMessage(ctx, c.Token, chatID, resp.Text, opts)
}

// cleanupUnreachable removes push state for a chat the platform reports
// permanently gone. Subscriptions go for any chat; when the gone chat is the
// conversation's own, the user's alerts and the dialog state go with it.
func (e *Engine) cleanupUnreachable(ctx context.Context, c *Context, m *Machine, chatID int64) error {
	e.logger.Info("recipient unreachable, cleaning up", "chat", chatID, "conversation", m.Name)

	if err := e.store.DeleteSubscriptionsForChat(ctx, chatID); err != nil {
		return fmt.Errorf("cleaning up subscriptions: %w", err)
	}
	if chatID != c.Key.ChatID {
		return nil
	}
	if err := e.store.DeleteAlertsForUser(ctx, c.Key.UserID); err != nil {
		return fmt.Errorf("cleaning up alerts: %w", err)
	}
	if err := e.store.SetState(ctx, c.Key, m.Initial, store.AuxData{}); err != nil {
		return fmt.Errorf("resetting state: %w", err)
	}
	return nil
}
