// ABOUTME: Relay subscription persistence for the channel-relay feature
// ABOUTME: Maps source channels to subscribed destination chats

package store

import (
	"context"
	"fmt"
)

// Subscribe adds a chat to a channel's subscriber list. Idempotent.
func (s *SQLiteStore) Subscribe(ctx context.Context, channel string, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO relay_subscriptions (channel, chat_id)
		VALUES (?, ?)
	`, channel, chatID)
	if err != nil {
		return fmt.Errorf("inserting subscription: %w", err)
	}

	s.logger.Debug("subscribed", "channel", channel, "chat", chatID)
	return nil
}

// Unsubscribe removes a chat from a channel's subscriber list.
// Returns ErrNotFound if no such subscription exists.
func (s *SQLiteStore) Unsubscribe(ctx context.Context, channel string, chatID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM relay_subscriptions WHERE channel = ? AND chat_id = ?
	`, channel, chatID)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("unsubscribed", "channel", channel, "chat", chatID)
	return nil
}

// ListSubscribers returns the chat ids subscribed to a channel.
func (s *SQLiteStore) ListSubscribers(ctx context.Context, channel string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id FROM relay_subscriptions
		WHERE channel = ?
		ORDER BY chat_id
	`, channel)
	if err != nil {
		return nil, fmt.Errorf("querying subscribers: %w", err)
	}
	defer rows.Close()

	var chats []int64
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scanning subscriber row: %w", err)
		}
		chats = append(chats, chatID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriber rows: %w", err)
	}
	return chats, nil
}

// ListSubscriptionsForChat returns the channels a chat is subscribed to.
func (s *SQLiteStore) ListSubscriptionsForChat(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel FROM relay_subscriptions
		WHERE chat_id = ?
		ORDER BY channel
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("scanning subscription row: %w", err)
		}
		channels = append(channels, channel)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscription rows: %w", err)
	}
	return channels, nil
}

// DeleteSubscriptionsForChat removes every subscription for a chat. Used when
// the remote platform reports the recipient as permanently unreachable.
func (s *SQLiteStore) DeleteSubscriptionsForChat(ctx context.Context, chatID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM relay_subscriptions WHERE chat_id = ?
	`, chatID)
	if err != nil {
		return fmt.Errorf("deleting subscriptions for chat: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.logger.Info("deleted subscriptions for unreachable chat", "chat", chatID, "count", rows)
	}
	return nil
}
