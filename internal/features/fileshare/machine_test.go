package fileshare

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

func setup(t *testing.T) (*fsm.Engine, *store.SQLiteStore, *remote.MockClient, *fsm.Machine) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	catalog, err := i18n.Load()
	require.NoError(t, err)

	client := remote.NewMockClient()
	return fsm.NewEngine(st, client, catalog), st, client, New()
}

func text(id int64, s string) remote.Event {
	return remote.Event{ID: id, UserID: 1, ChatID: 10, MessageID: id, Kind: remote.KindText, Text: s}
}

func upload(id int64, fileRef, caption string) remote.Event {
	return remote.Event{ID: id, UserID: 1, ChatID: 10, MessageID: id, Kind: remote.KindDocument,
		Document: &remote.Document{FileRef: fileRef, FileName: "report.pdf", Caption: caption}}
}

var shareIDPattern = regexp.MustCompile(`Share id: ([0-9a-f]+)`)

func TestFileshare_UploadAndFetch(t *testing.T) {
	engine, st, client, m := setup(t)
	ctx := context.Background()

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Upload a file")))
	require.NoError(t, engine.Handle(ctx, "tok", m, upload(2, "remote-ref-abc", "quarterly report")))

	match := shareIDPattern.FindStringSubmatch(client.LastMessage().Text)
	require.NotNil(t, match, "upload confirmation carries the share id")
	shareID := match[1]

	files, err := st.ListSharedFiles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, shareID, files[0].ID)
	assert.Equal(t, "remote-ref-abc", files[0].FileRef)

	// Fetch it back by id
	require.NoError(t, engine.Handle(ctx, "tok", m, text(3, "Get a file")))

	row, err := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}, StateMain)
	require.NoError(t, err)

	answer := text(4, shareID)
	answer.ReplyToID = row.Aux.PromptID
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	docs := client.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "remote-ref-abc", docs[0].Doc.FileRef)
	assert.Equal(t, "quarterly report", docs[0].Doc.Caption)
}

func TestFileshare_RedeliveredUploadConverges(t *testing.T) {
	engine, st, _, m := setup(t)
	ctx := context.Background()

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Upload a file")))
	require.NoError(t, engine.Handle(ctx, "tok", m, upload(2, "remote-ref-abc", "report")))

	// Same document delivered again lands on the same share id, not a new row
	require.NoError(t, engine.Handle(ctx, "tok", m, text(3, "Upload a file")))
	require.NoError(t, engine.Handle(ctx, "tok", m, upload(4, "remote-ref-abc", "report")))

	files, err := st.ListSharedFiles(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestFileshare_UnknownIDRefused(t *testing.T) {
	engine, st, client, m := setup(t)
	ctx := context.Background()

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Get a file")))

	row, err := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}, StateMain)
	require.NoError(t, err)

	answer := text(2, "deadbeef")
	answer.ReplyToID = row.Aux.PromptID
	require.NoError(t, engine.Handle(ctx, "tok", m, answer))

	assert.Contains(t, client.LastMessage().Text, "No file")
	assert.Empty(t, client.Documents())
}

func TestFileshare_ListFiles(t *testing.T) {
	engine, _, client, m := setup(t)
	ctx := context.Background()

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "My files")))
	assert.Contains(t, client.LastMessage().Text, "no stored files")

	require.NoError(t, engine.Handle(ctx, "tok", m, text(2, "Upload a file")))
	require.NoError(t, engine.Handle(ctx, "tok", m, upload(3, "ref-1", "notes")))
	require.NoError(t, engine.Handle(ctx, "tok", m, text(4, "My files")))

	assert.Contains(t, client.LastMessage().Text, "notes")
}

func TestFileshare_TextWhileAwaitingUploadIsUnrecognized(t *testing.T) {
	engine, st, client, m := setup(t)
	ctx := context.Background()

	require.NoError(t, engine.Handle(ctx, "tok", m, text(1, "Upload a file")))
	require.NoError(t, engine.Handle(ctx, "tok", m, text(2, "here is my file")))

	row, err := st.GetState(ctx, store.ConversationKey{UserID: 1, ChatID: 10, Conversation: Name}, StateMain)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitUpload, row.Code)
	assert.Contains(t, client.LastMessage().Text, "didn't understand")
}
