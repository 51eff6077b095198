package directions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

type fakeRouter struct {
	Err error
}

func (f *fakeRouter) Route(ctx context.Context, origin, destination string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return "take the A1 for 300km", nil
}

func setup(t *testing.T) (*fsm.Engine, *store.SQLiteStore, *remote.MockClient, *fsm.Machine, *fakeRouter) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog, err := i18n.Load()
	require.NoError(t, err)

	router := &fakeRouter{}
	client := remote.NewMockClient()
	return fsm.NewEngine(st, client, catalog), st, client, New(router), router
}

func text(id int64, s string) remote.Event {
	return remote.Event{ID: id, UserID: 1, ChatID: 10, MessageID: id, Kind: remote.KindText, Text: s}
}

func promptID(t *testing.T, st *store.SQLiteStore) int64 {
	t.Helper()
	row, err := st.GetState(context.Background(),
		store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}, StateMain)
	require.NoError(t, err)
	require.NotZero(t, row.Aux.PromptID)
	return row.Aux.PromptID
}

func TestDirections_FullRouteFlow(t *testing.T) {
	engine, st, client, m, _ := setup(t)
	ctx := context.Background()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Find a route")))

	origin := text(2, "Berlin")
	origin.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, origin))

	row, err := st.GetState(ctx, key, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitDestination, row.Code)
	assert.Equal(t, "Berlin", row.Aux.Text, "origin carried in aux while destination pending")

	dest := text(3, "Munich")
	dest.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, dest))

	row, err = st.GetState(ctx, key, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateMain, row.Code)

	msg := client.LastMessage()
	assert.Contains(t, msg.Text, "Berlin")
	assert.Contains(t, msg.Text, "Munich")
	assert.Contains(t, msg.Text, "A1")
}

func TestDirections_RecentRouteShortCircuits(t *testing.T) {
	engine, st, client, m, _ := setup(t)
	ctx := context.Background()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Find a route")))
	origin := text(2, "Berlin")
	origin.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, origin))
	dest := text(3, "Munich")
	dest.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, dest))
	client.Reset()

	// The stored route name is now a one-tap menu option
	require.NoError(t, engine.Handle(ctx, "tok", m, text(4, "Berlin - Munich")))

	msg := client.LastMessage()
	require.NotNil(t, msg)
	assert.Contains(t, msg.Text, "A1")

	row, err := st.GetState(ctx, key, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateMain, row.Code)

	// Replaying the same pick converges on one history row
	recent, err := st.ListRecent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestDirections_StaleOriginReplyIgnored(t *testing.T) {
	engine, st, client, m, _ := setup(t)
	ctx := context.Background()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Find a route")))

	// Free text that is not a reply to the prompt must not be taken as origin
	require.NoError(t, engine.Handle(ctx, "tok", m, text(2, "Berlin")))

	row, err := st.GetState(ctx, key, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitOrigin, row.Code)
	assert.Contains(t, client.LastMessage().Text, "didn't understand")
}

func TestDirections_ProviderFailureKeepsState(t *testing.T) {
	engine, st, client, m, router := setup(t)
	ctx := context.Background()
	key := store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Find a route")))

	origin := text(2, "Berlin")
	origin.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, origin))

	router.Err = errors.New("routing service down")
	dest := text(3, "Munich")
	dest.ReplyToID = promptID(t, st)
	require.NoError(t, engine.Handle(ctx, "tok", m, dest))

	row, err := st.GetState(ctx, key, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitDestination, row.Code)
	assert.Equal(t, "Berlin", row.Aux.Text, "origin survives a failed fetch")
	assert.Contains(t, client.LastMessage().Text, "Couldn't fetch")
}
