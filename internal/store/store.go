// ABOUTME: Store interface and data types for chatflow persistence
// ABOUTME: Defines conversation state, preferences, history, alerts and cursor records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a uniqueness constraint rejects a create.
// Callers that retry after an ambiguous failure should treat it as success.
var ErrAlreadyExists = errors.New("already exists")

// RecentCap is the maximum number of entries kept per user in the
// recent-query history. Inserting beyond the cap evicts the oldest.
const RecentCap = 5

// ConversationKey identifies one FSM instance's persisted row.
type ConversationKey struct {
	UserID       int64
	ChatID       int64
	Conversation string
}

// ConversationState is the durable state of one dialog.
// Aux carries transition-specific data such as the message id of a
// pending prompt, serialized as JSON in the backing row.
type ConversationState struct {
	Key       ConversationKey
	Code      int
	Aux       AuxData
	UpdatedAt time.Time
}

// AuxData is the optional structured payload attached to a state row.
type AuxData struct {
	// PromptID is the message id of an outbound question awaiting a reply.
	// A free-text answer is only accepted when it replies to this id.
	PromptID int64 `json:"prompt_id,omitempty"`
	// Text holds an intermediate free-text value collected earlier in the
	// flow, e.g. a travel origin while the destination is still pending.
	Text string `json:"text,omitempty"`
}

// IsZero reports whether the payload carries no data.
func (a AuxData) IsZero() bool {
	return a.PromptID == 0 && a.Text == ""
}

// Preferences holds per-user settings. Language is a BCP-47 code from the
// supported set; unknown codes fall back to the default at read time.
type Preferences struct {
	UserID    int64
	Language  string
	Units     string
	UpdatedAt time.Time
}

// Units values for Preferences.Units.
const (
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// RecentQuery is one entry in a user's bounded lookup history.
type RecentQuery struct {
	UserID      int64
	SubjectID   string
	SubjectName string
	Position    int64
}

// Alert is a scheduled push subscription for one subject.
type Alert struct {
	ID          string
	UserID      int64
	SubjectID   string
	SubjectName string
	CreatedAt   time.Time
}

// SharedFile is a stored reference to an uploaded document.
type SharedFile struct {
	ID        string
	OwnerID   int64
	FileRef   string
	Caption   string
	CreatedAt time.Time
}

// Store defines the persistence operations used by the pipeline, the FSM
// engine and the periodic alert job. All writes are idempotent upserts so
// callers may retry after ambiguous failures.
type Store interface {
	// Conversation state
	GetState(ctx context.Context, key ConversationKey, initial int) (*ConversationState, error)
	SetState(ctx context.Context, key ConversationKey, code int, aux AuxData) error

	// Preferences
	GetPreferences(ctx context.Context, userID int64) (*Preferences, error)
	SetPreferences(ctx context.Context, prefs *Preferences) error

	// Recent-query history (FIFO, capped at RecentCap per user)
	PushRecent(ctx context.Context, userID int64, subjectID, subjectName string) error
	ListRecent(ctx context.Context, userID int64) ([]*RecentQuery, error)

	// Scheduled alerts
	CreateAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, userID int64) ([]*Alert, error)
	ListAllAlerts(ctx context.Context) ([]*Alert, error)
	DeleteAlert(ctx context.Context, id string) error
	DeleteAlertsForUser(ctx context.Context, userID int64) error

	// Ingestion cursors, one per bot token
	GetCursor(ctx context.Context, token string) (int64, error)
	PutCursor(ctx context.Context, token string, value int64) error

	// Relay subscriptions
	Subscribe(ctx context.Context, channel string, chatID int64) error
	Unsubscribe(ctx context.Context, channel string, chatID int64) error
	ListSubscribers(ctx context.Context, channel string) ([]int64, error)
	ListSubscriptionsForChat(ctx context.Context, chatID int64) ([]string, error)
	DeleteSubscriptionsForChat(ctx context.Context, chatID int64) error

	// Shared files
	SaveSharedFile(ctx context.Context, file *SharedFile) error
	GetSharedFile(ctx context.Context, id string) (*SharedFile, error)
	ListSharedFiles(ctx context.Context, ownerID int64) ([]*SharedFile, error)
	DeleteSharedFile(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
