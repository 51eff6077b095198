// ABOUTME: FSM execution contract shared by every feature conversation
// ABOUTME: Data-driven transition tables of matcher/handler rules per state

package fsm

import (
	"context"

	"github.com/2389/chatflow/internal/i18n"
	"github.com/2389/chatflow/internal/remote"
	"github.com/2389/chatflow/internal/store"
)

// State is the in-flight view of one conversation's persisted row.
type State struct {
	Code int
	Aux  store.AuxData
}

// Response is one outbound message produced by a transition.
type Response struct {
	// ChatID overrides the conversation's chat when non-zero (relay fan-out).
	ChatID   int64
	Text     string
	Document *remote.Document
	Keyboard [][]string
	// AwaitReply marks this message as a prompt: it is sent with force-reply
	// and its message id is recorded in the next state's aux data so only a
	// direct reply is accepted as the answer.
	AwaitReply bool
}

// Outcome is the result of one transition: the next state, zero or more
// outbound responses and the durable side effects to apply first.
type Outcome struct {
	Next      State
	Responses []Response
	Effects   []Effect
}

// ReadStore is the read-only store surface handlers may use while deciding
// a transition (history menus, alert lists). All writes go through Effects.
type ReadStore interface {
	ListRecent(ctx context.Context, userID int64) ([]*store.RecentQuery, error)
	ListAlerts(ctx context.Context, userID int64) ([]*store.Alert, error)
	GetSharedFile(ctx context.Context, id string) (*store.SharedFile, error)
	ListSharedFiles(ctx context.Context, ownerID int64) ([]*store.SharedFile, error)
	ListSubscribers(ctx context.Context, channel string) ([]int64, error)
	ListSubscriptionsForChat(ctx context.Context, chatID int64) ([]string, error)
}

// Context carries the per-event environment a handler runs in.
type Context struct {
	Token string
	Key   store.ConversationKey
	Prefs *store.Preferences
	Loc   *i18n.Localizer
	Store ReadStore
}

// Handler computes the outcome of one transition. A handler must be free of
// store writes; it expresses them as Effects so the engine can apply them
// atomically before the state write and the send.
type Handler func(ctx context.Context, c *Context, st State, ev remote.Event) (Outcome, error)

// Matcher decides whether a rule fires for an event in a state. Matchers
// that read the store must use ctx so the read honors cancellation.
type Matcher func(ctx context.Context, c *Context, st State, ev remote.Event) bool

// Rule pairs a matcher with the handler it triggers.
type Rule struct {
	When Matcher
	Do   Handler
}

// Machine is one feature conversation: an initial state and a transition
// table. The engine applies the uniform edge-case policy around the table:
// cancel always returns to the initial state, and an event matching no rule
// re-sends the current menu without changing state.
type Machine struct {
	Name    string
	Initial int
	Rules   map[int][]Rule

	// Menu builds the "choose an option" keyboard for a state, used for the
	// unrecognized-input reprompt and after a cancel. Falls back to the
	// initial state's menu when a state has no entry.
	Menu func(ctx context.Context, c *Context, code int) [][]string
}

// Stay returns an outcome that keeps the current state unchanged.
func Stay(st State, responses ...Response) Outcome {
	return Outcome{Next: st, Responses: responses}
}

// Goto returns an outcome that moves to a new state code with empty aux.
func Goto(code int, responses ...Response) Outcome {
	return Outcome{Next: State{Code: code}, Responses: responses}
}

// IsCancel reports whether an event is the cancel sentinel. Both the cancel
// command and the start command reset the dialog to its main menu.
func IsCancel(ev remote.Event) bool {
	if ev.Kind != remote.KindText {
		return false
	}
	return ev.Text == "/cancel" || ev.Text == "/start"
}

// Label matches a plain text message equal to the localized menu label.
func Label(key string) Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindText && ev.Text != "" && ev.Text == c.Loc.T(key)
	}
}

// Reply matches free text that replies to the pending prompt recorded in aux.
// Free text without the matching correlation id is unrecognized input, which
// keeps stale answers to old prompts from being misapplied.
func Reply() Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindText && ev.Text != "" &&
			st.Aux.PromptID != 0 && ev.ReplyToID == st.Aux.PromptID
	}
}

// AnyText matches any non-empty plain text message.
func AnyText() Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindText && ev.Text != ""
	}
}

// Location matches a location payload.
func Location() Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindLocation && ev.Location != nil
	}
}

// DocumentUpload matches a document payload.
func DocumentUpload() Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindDocument && ev.Document != nil
	}
}

// ChannelPost matches a message published to a broadcast channel.
func ChannelPost() Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		return ev.Kind == remote.KindChannelPost
	}
}

// Any matches if any of the given matchers match.
func Any(matchers ...Matcher) Matcher {
	return func(ctx context.Context, c *Context, st State, ev remote.Event) bool {
		for _, m := range matchers {
			if m(ctx, c, st, ev) {
				return true
			}
		}
		return false
	}
}
