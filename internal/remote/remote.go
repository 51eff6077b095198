// ABOUTME: Client interface and event types for the remote messaging platform
// ABOUTME: The core depends on this boundary only, never on transport details

package remote

import (
	"context"
	"errors"
	"time"
)

// ErrRecipientGone means the remote platform reports the recipient as
// permanently unreachable (blocked the bot, deleted the account). Callers
// should clean up state for that user instead of retrying.
var ErrRecipientGone = errors.New("recipient permanently unreachable")

// ErrMalformed means the platform rejected the request as malformed.
// Not retryable; log and move on.
var ErrMalformed = errors.New("malformed request")

// EventKind distinguishes the payload variants an Event can carry.
type EventKind int

const (
	// KindText is a plain text message, possibly a menu label or command.
	KindText EventKind = iota + 1
	// KindLocation is a geographic coordinate payload.
	KindLocation
	// KindDocument is an uploaded file reference.
	KindDocument
	// KindCallback is a button-press callback with an opaque data string.
	KindCallback
	// KindChannelPost is a message published to a broadcast channel.
	KindChannelPost
)

// Location is a geographic point attached to an event.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Document is a file reference attached to an event. FileRef is an opaque
// handle understood by the platform; bytes never pass through the core.
type Document struct {
	FileRef  string
	FileName string
	Caption  string
}

// Event is one inbound update from the platform. ID is monotonically
// increasing within a token's stream and drives the ingestion cursor.
type Event struct {
	ID        int64
	UserID    int64
	ChatID    int64
	MessageID int64
	// ReplyToID is the id of the outbound message this event replies to,
	// 0 if it is not a reply. Used to correlate answers with prompts.
	ReplyToID int64

	Kind     EventKind
	Text     string
	Location *Location
	Document *Document
	Callback string
	// Channel is the source channel name for KindChannelPost events.
	Channel string
}

// SendOptions carries optional parameters for outbound messages.
type SendOptions struct {
	// Keyboard rows rendered as one-tap reply options; nil hides the keyboard.
	Keyboard [][]string
	// ForceReply asks the client to pre-address the user's next message as a
	// reply to this one, so the answer carries a correlation id.
	ForceReply bool
}

// Client is the narrow boundary to the messaging platform. Implementations
// own all transport detail; the core treats fetch and send as opaque.
//
// Failure contract: FetchEvents and the send calls return ErrRecipientGone
// for permanently unreachable recipients and ErrMalformed for rejected
// requests; any other error is transient and may be retried.
type Client interface {
	// FetchEvents returns events with id >= offset, ordered by id, blocking
	// up to timeout server-side. An empty result is normal, not an error.
	FetchEvents(ctx context.Context, token string, offset int64, timeout time.Duration) ([]Event, error)

	// SendMessage sends text to a chat and returns the sent message's id,
	// needed to correlate later replies.
	SendMessage(ctx context.Context, token string, chatID int64, text string, opts *SendOptions) (int64, error)

	// SendDocument sends a previously stored file reference to a chat.
	SendDocument(ctx context.Context, token string, chatID int64, doc Document, opts *SendOptions) error
}
