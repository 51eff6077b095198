// ABOUTME: Conversation state and user preference persistence
// ABOUTME: Get-or-create reads plus idempotent upsert writes

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetState retrieves the state row for a key, creating a default row with the
// given initial state code on first access. The expected "first visit" case
// never returns an error.
func (s *SQLiteStore) GetState(ctx context.Context, key ConversationKey, initial int) (*ConversationState, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversation_state (user_id, chat_id, conversation, state, aux_json, updated_at)
		VALUES (?, ?, ?, ?, '{}', ?)
	`, key.UserID, key.ChatID, key.Conversation, initial, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("creating default state: %w", err)
	}

	var st ConversationState
	var auxJSON, updatedAtStr string

	err = s.db.QueryRowContext(ctx, `
		SELECT state, aux_json, updated_at
		FROM conversation_state
		WHERE user_id = ? AND chat_id = ? AND conversation = ?
	`, key.UserID, key.ChatID, key.Conversation).Scan(&st.Code, &auxJSON, &updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("querying state: %w", err)
	}

	st.Key = key
	if err := json.Unmarshal([]byte(auxJSON), &st.Aux); err != nil {
		return nil, fmt.Errorf("parsing aux data: %w", err)
	}
	st.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &st, nil
}

// SetState writes the state row for a key. The write is a full replace so
// retrying after an ambiguous failure converges on the same row.
func (s *SQLiteStore) SetState(ctx context.Context, key ConversationKey, code int, aux AuxData) error {
	auxJSON, err := json.Marshal(aux)
	if err != nil {
		return fmt.Errorf("encoding aux data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversation_state (user_id, chat_id, conversation, state, aux_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, chat_id, conversation) DO UPDATE SET
			state = excluded.state,
			aux_json = excluded.aux_json,
			updated_at = excluded.updated_at
	`, key.UserID, key.ChatID, key.Conversation, code, string(auxJSON),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing state: %w", err)
	}

	s.logger.Debug("set state", "user", key.UserID, "chat", key.ChatID,
		"conversation", key.Conversation, "state", code)
	return nil
}

// GetPreferences retrieves preferences for a user, returning defaults on
// first access without creating an error.
func (s *SQLiteStore) GetPreferences(ctx context.Context, userID int64) (*Preferences, error) {
	var prefs Preferences
	var updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, language, units, updated_at
		FROM user_prefs
		WHERE user_id = ?
	`, userID).Scan(&prefs.UserID, &prefs.Language, &prefs.Units, &updatedAtStr)

	if err == sql.ErrNoRows {
		return &Preferences{
			UserID:   userID,
			Language: "",
			Units:    UnitsMetric,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying preferences: %w", err)
	}

	prefs.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &prefs, nil
}

// SetPreferences upserts a user's preferences.
func (s *SQLiteStore) SetPreferences(ctx context.Context, prefs *Preferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_prefs (user_id, language, units, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			language = excluded.language,
			units = excluded.units,
			updated_at = excluded.updated_at
	`, prefs.UserID, prefs.Language, prefs.Units,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}

	s.logger.Debug("set preferences", "user", prefs.UserID,
		"language", prefs.Language, "units", prefs.Units)
	return nil
}
