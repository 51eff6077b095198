package fsm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

const (
	stateMain = iota
	stateAwaitCity
)

// newLookupMachine builds a minimal two-state machine: a menu state that
// prompts for a city, and an awaiting state that answers a correlated reply
// and records the lookup.
func newLookupMachine() *Machine {
	return &Machine{
		Name:    "lookup",
		Initial: stateMain,
		Menu: func(ctx context.Context, c *Context, code int) [][]string {
			if code != stateMain {
				return nil
			}
			return [][]string{{c.Loc.T("weather.menu.current")}}
		},
		Rules: map[int][]Rule{
			stateMain: {
				{When: Label("weather.menu.current"), Do: func(ctx context.Context, c *Context, st State, ev remote.Event) (Outcome, error) {
					return Outcome{
						Next:      State{Code: stateAwaitCity},
						Responses: []Response{{Text: c.Loc.T("weather.ask_city"), AwaitReply: true}},
					}, nil
				}},
			},
			stateAwaitCity: {
				{When: Reply(), Do: func(ctx context.Context, c *Context, st State, ev remote.Event) (Outcome, error) {
					return Outcome{
						Next:      State{Code: stateMain},
						Responses: []Response{{Text: "weather for " + ev.Text}},
						Effects: []Effect{RecordRecent{
							UserID:      c.Key.UserID,
							SubjectID:   ev.Text,
							SubjectName: ev.Text,
						}},
					}, nil
				}},
			},
		},
	}
}

func setupEngine(t *testing.T) (*Engine, *store.SQLiteStore, *remote.MockClient) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog, err := i18n.Load()
	require.NoError(t, err)

	client := remote.NewMockClient()
	return NewEngine(st, client, catalog), st, client
}

func textEvent(id int64, text string) remote.Event {
	return remote.Event{ID: id, UserID: 1, ChatID: 10, MessageID: id, Kind: remote.KindText, Text: text}
}

func TestEngine_MenuLabelAdvancesState(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()

	err := engine.Handle(ctx, "tok", m, textEvent(1, "Current weather"))
	require.NoError(t, err)

	row, err := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateAwaitCity, row.Code)
	assert.NotZero(t, row.Aux.PromptID, "prompt id must be recorded for reply correlation")

	msg := client.LastMessage()
	require.NotNil(t, msg)
	assert.Contains(t, msg.Text, "Which city?")
	assert.True(t, msg.Opts.ForceReply)
}

func TestEngine_CorrelatedReplyAnswersAndReturns(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	promptID := row.Aux.PromptID

	answer := textEvent(2, "Paris,FR")
	answer.ReplyToID = promptID
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	row, err = st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, row.Code)
	assert.True(t, row.Aux.IsZero(), "aux is cleared when the flow completes")

	assert.Contains(t, client.LastMessage().Text, "Paris,FR")

	recent, err := st.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Paris,FR", recent[0].SubjectID)
}

func TestEngine_UncorrelatedReplyIsUnrecognized(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))

	// A stale answer replying to some other message must not be accepted
	stale := textEvent(2, "Paris,FR")
	stale.ReplyToID = 9999
	require.NoError(t, engine.Handle(ctx, "tok", m, stale))

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateAwaitCity, row.Code, "state unchanged on unrecognized input")
	assert.NotZero(t, row.Aux.PromptID, "pending prompt stays answerable")

	assert.Contains(t, client.LastMessage().Text, "didn't understand")

	recent, err := st.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEngine_UnrecognizedInputKeepsState(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "gibberish")))

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, row.Code)

	msg := client.LastMessage()
	require.NotNil(t, msg)
	assert.Contains(t, msg.Text, "didn't understand")
	assert.Equal(t, [][]string{{"Current weather"}}, msg.Opts.Keyboard)
}

func TestEngine_CancelFromAnyStateReturnsToInitial(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))
	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(2, "/cancel")))

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, row.Code)
	assert.True(t, row.Aux.IsZero(), "cancel clears aux regardless of its contents")

	assert.Contains(t, client.LastMessage().Text, "main menu")
}

func TestEngine_ReprocessingSameEventConverges(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))
	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)

	answer := textEvent(2, "Paris,FR")
	answer.ReplyToID = row.Aux.PromptID
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	// Redelivery of the same event after an ambiguous failure: the answer no
	// longer correlates (aux was cleared), so it reads as unrecognized input
	// and the state is untouched. No duplicate history entry either way.
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	final, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, final.Code)

	recent, err := st.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	assert.Contains(t, client.LastMessage().Text, "didn't understand")
}

func TestEngine_LocalizedMenuLabels(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()

	require.NoError(t, st.SetPreferences(ctx, &store.Preferences{
		UserID: 1, Language: "es", Units: store.UnitsMetric,
	}))

	// The Spanish label must match; the English one must not
	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Tiempo actual")))

	row, err := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateAwaitCity, row.Code)
	assert.Contains(t, client.LastMessage().Text, "ciudad")
}

func TestEngine_RecipientGoneCleansUp(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, st.CreateAlert(ctx, &store.Alert{
		ID: "a1", UserID: 1, SubjectID: "paris", SubjectName: "Paris,FR",
	}))
	require.NoError(t, st.Subscribe(ctx, "news", 10))

	client.SendErr = remote.ErrRecipientGone
	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))

	alerts, err := st.ListAlerts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	subs, err := st.ListSubscribers(ctx, "news")
	require.NoError(t, err)
	assert.Empty(t, subs)

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, row.Code, "conversation reset to initial")
}

func TestEngine_LostPromptIDRearmedByReprompt(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(1, "Current weather")))

	// The await state is durable but the correlation id never made it to the
	// store, as happens when the prompt-id write fails after the send.
	require.NoError(t, st.SetState(ctx, key, stateAwaitCity, store.AuxData{}))

	require.NoError(t, engine.Handle(ctx, "tok", m, textEvent(2, "Paris,FR")))

	row, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateAwaitCity, row.Code)
	require.NotZero(t, row.Aux.PromptID, "reprompt re-arms the correlation id")
	assert.True(t, client.LastMessage().Opts.ForceReply)

	// Answering the reprompt completes the flow
	answer := textEvent(3, "Paris,FR")
	answer.ReplyToID = row.Aux.PromptID
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	final, err := st.GetState(ctx, key, stateMain)
	require.NoError(t, err)
	assert.Equal(t, stateMain, final.Code)
	assert.Contains(t, client.LastMessage().Text, "Paris,FR")
}

func TestEngine_SendFailureSurfacesAfterStateWrite(t *testing.T) {
	engine, st, client := setupEngine(t)
	ctx := context.Background()
	m := newLookupMachine()

	client.SendErr = assert.AnError
	err := engine.Handle(ctx, "tok", m, textEvent(1, "Current weather"))
	require.Error(t, err)

	// State is durable even though the send failed; redelivery is safe
	row, gerr := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: "lookup"}, stateMain)
	require.NoError(t, gerr)
	assert.Equal(t, stateAwaitCity, row.Code)
}
