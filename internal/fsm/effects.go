// ABOUTME: Durable side effects a transition can request
// ABOUTME: Applied by the engine before the state write, idempotent under retry

package fsm

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/chatflow/internal/store"
)

// EffectStore is the write surface effects run against.
type EffectStore interface {
	SetPreferences(ctx context.Context, prefs *store.Preferences) error
	PushRecent(ctx context.Context, userID int64, subjectID, subjectName string) error
	CreateAlert(ctx context.Context, alert *store.Alert) error
	DeleteAlert(ctx context.Context, id string) error
	Subscribe(ctx context.Context, channel string, chatID int64) error
	Unsubscribe(ctx context.Context, channel string, chatID int64) error
	SaveSharedFile(ctx context.Context, file *store.SharedFile) error
	DeleteSharedFile(ctx context.Context, id string) error
}

// Effect is one durable write requested by a transition. Implementations
// must be idempotent: re-applying after a retry converges on the same rows.
type Effect interface {
	Apply(ctx context.Context, s EffectStore) error
}

// SavePreferences upserts the user's preferences.
type SavePreferences struct {
	Prefs *store.Preferences
}

func (e SavePreferences) Apply(ctx context.Context, s EffectStore) error {
	if err := s.SetPreferences(ctx, e.Prefs); err != nil {
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}

// RecordRecent pushes a lookup onto the user's bounded history.
type RecordRecent struct {
	UserID      int64
	SubjectID   string
	SubjectName string
}

func (e RecordRecent) Apply(ctx context.Context, s EffectStore) error {
	if err := s.PushRecent(ctx, e.UserID, e.SubjectID, e.SubjectName); err != nil {
		return fmt.Errorf("recording recent lookup: %w", err)
	}
	return nil
}

// SaveAlert creates a scheduled alert. An existing alert for the same
// subject counts as success so retries converge.
type SaveAlert struct {
	Alert *store.Alert
}

func (e SaveAlert) Apply(ctx context.Context, s EffectStore) error {
	err := s.CreateAlert(ctx, e.Alert)
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("creating alert: %w", err)
	}
	return nil
}

// RemoveAlert deletes a scheduled alert. A missing row counts as success.
type RemoveAlert struct {
	ID string
}

func (e RemoveAlert) Apply(ctx context.Context, s EffectStore) error {
	err := s.DeleteAlert(ctx, e.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting alert: %w", err)
	}
	return nil
}

// AddSubscription subscribes a chat to a relay channel.
type AddSubscription struct {
	Channel string
	ChatID  int64
}

func (e AddSubscription) Apply(ctx context.Context, s EffectStore) error {
	if err := s.Subscribe(ctx, e.Channel, e.ChatID); err != nil {
		return fmt.Errorf("subscribing: %w", err)
	}
	return nil
}

// RemoveSubscription unsubscribes a chat. A missing row counts as success.
type RemoveSubscription struct {
	Channel string
	ChatID  int64
}

func (e RemoveSubscription) Apply(ctx context.Context, s EffectStore) error {
	err := s.Unsubscribe(ctx, e.Channel, e.ChatID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("unsubscribing: %w", err)
	}
	return nil
}

// StoreFile saves a shared file reference.
type StoreFile struct {
	File *store.SharedFile
}

func (e StoreFile) Apply(ctx context.Context, s EffectStore) error {
	if err := s.SaveSharedFile(ctx, e.File); err != nil {
		return fmt.Errorf("saving shared file: %w", err)
	}
	return nil
}

// RemoveFile deletes a shared file reference. A missing row counts as success.
type RemoveFile struct {
	ID string
}

func (e RemoveFile) Apply(ctx context.Context, s EffectStore) error {
	err := s.DeleteSharedFile(ctx, e.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting shared file: %w", err)
	}
	return nil
}
