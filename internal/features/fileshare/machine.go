// ABOUTME: File-sharing conversation machine: upload, list, fetch by share id
// ABOUTME: Only remote file references are stored, never file bytes

package fileshare

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chatflow/internal/fsm"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// Name is the conversation type this machine registers under.
const Name = "files"

// File-sharing conversation states.
const (
	StateMain = iota
	StateAwaitUpload
	StateAwaitFileID
)

// New builds the file-sharing machine.
func New() *fsm.Machine {
	b := &builder{}

	return &fsm.Machine{
		Name:    Name,
		Initial: StateMain,
		Menu:    b.menu,
		Rules: map[int][]fsm.Rule{
			StateMain: {
				{When: fsm.Label("files.menu.upload"), Do: b.askUpload},
				{When: fsm.Label("files.menu.get"), Do: b.askFileID},
				{When: fsm.Label("files.menu.list"), Do: b.listFiles},
			},
			StateAwaitUpload: {
				{When: fsm.DocumentUpload(), Do: b.storeUpload},
			},
			StateAwaitFileID: {
				{When: fsm.Reply(), Do: b.sendFile},
			},
		},
	}
}

type builder struct{}

func (b *builder) menu(ctx context.Context, c *fsm.Context, code int) [][]string {
	if code == StateMain {
		return [][]string{
			{c.Loc.T("files.menu.upload"), c.Loc.T("files.menu.get")},
			{c.Loc.T("files.menu.list")},
		}
	}
	return nil
}

func (b *builder) askUpload(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Goto(StateAwaitUpload, fsm.Response{Text: c.Loc.T("files.ask_upload")}), nil
}

func (b *builder) askFileID(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	return fsm.Outcome{
		Next:      fsm.State{Code: StateAwaitFileID},
		Responses: []fsm.Response{{Text: c.Loc.T("files.ask_id"), AwaitReply: true}},
	}, nil
}

// storeUpload records the uploaded document's remote reference under a share
// id and hands the id back to the owner. The id is derived from the owner and
// the remote file reference, so a redelivered upload converges on one row.
func (b *builder) storeUpload(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	// Short ids are friendlier to type than full UUIDs
	seed := fmt.Sprintf("%d:%s", c.Key.UserID, ev.Document.FileRef)
	id := strings.SplitN(uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String(), "-", 2)[0]

	return fsm.Outcome{
		Next: fsm.State{Code: StateMain},
		Responses: []fsm.Response{{
			Text:     c.Loc.Tf("files.uploaded", id),
			Keyboard: b.menu(ctx, c, StateMain),
		}},
		Effects: []fsm.Effect{fsm.StoreFile{File: &store.SharedFile{
			ID:        id,
			OwnerID:   c.Key.UserID,
			FileRef:   ev.Document.FileRef,
			Caption:   ev.Document.Caption,
			CreatedAt: time.Now().UTC(),
		}}},
	}, nil
}

// sendFile resolves a share id and responds with the stored document.
func (b *builder) sendFile(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	file, err := c.Store.GetSharedFile(ctx, strings.TrimSpace(ev.Text))
	if err != nil {
		if err == store.ErrNotFound {
			return fsm.Goto(StateMain, fsm.Response{
				Text:     c.Loc.T("files.not_found"),
				Keyboard: b.menu(ctx, c, StateMain),
			}), nil
		}
		return fsm.Outcome{}, err
	}

	return fsm.Goto(StateMain,
		fsm.Response{Document: &remote.Document{
			FileRef: file.FileRef,
			Caption: file.Caption,
		}},
		fsm.Response{Text: c.Loc.T("menu.main"), Keyboard: b.menu(ctx, c, StateMain)},
	), nil
}

func (b *builder) listFiles(ctx context.Context, c *fsm.Context, st fsm.State, ev remote.Event) (fsm.Outcome, error) {
	files, err := c.Store.ListSharedFiles(ctx, c.Key.UserID)
	if err != nil {
		return fsm.Outcome{}, err
	}

	if len(files) == 0 {
		return fsm.Stay(st, fsm.Response{
			Text:     c.Loc.T("files.none"),
			Keyboard: b.menu(ctx, c, StateMain),
		}), nil
	}

	var sb strings.Builder
	for _, f := range files {
		sb.WriteString(f.ID)
		if f.Caption != "" {
			sb.WriteString("  ")
			sb.WriteString(f.Caption)
		}
		sb.WriteString("\n")
	}

	return fsm.Stay(st, fsm.Response{
		Text:     sb.String(),
		Keyboard: b.menu(ctx, c, StateMain),
	}), nil
}
