// ABOUTME: Bounded per-user recent-query history
// ABOUTME: Insert-then-evict in one transaction, deduplicated by subject

package store

import (
	"context"
	"fmt"
)

// PushRecent records a lookup at the front of the user's history. Re-inserting
// a known subject moves it to the front instead of duplicating it, and any
// entries beyond RecentCap are evicted oldest-first in the same transaction.
func (s *SQLiteStore) PushRecent(ctx context.Context, userID int64, subjectID, subjectName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_queries (user_id, subject_id, subject_name, position)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM recent_queries WHERE user_id = ?))
		ON CONFLICT (user_id, subject_id) DO UPDATE SET
			subject_name = excluded.subject_name,
			position = excluded.position
	`, userID, subjectID, subjectName, userID)
	if err != nil {
		return fmt.Errorf("inserting recent query: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM recent_queries
		WHERE user_id = ? AND subject_id NOT IN (
			SELECT subject_id FROM recent_queries
			WHERE user_id = ?
			ORDER BY position DESC
			LIMIT ?
		)
	`, userID, userID, RecentCap)
	if err != nil {
		return fmt.Errorf("evicting old recent queries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing recent query: %w", err)
	}

	s.logger.Debug("pushed recent query", "user", userID, "subject", subjectID)
	return nil
}

// ListRecent returns the user's history, most recent first.
func (s *SQLiteStore) ListRecent(ctx context.Context, userID int64) ([]*RecentQuery, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, subject_id, subject_name, position
		FROM recent_queries
		WHERE user_id = ?
		ORDER BY position DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying recent queries: %w", err)
	}
	defer rows.Close()

	var recent []*RecentQuery
	for rows.Next() {
		var r RecentQuery
		if err := rows.Scan(&r.UserID, &r.SubjectID, &r.SubjectName, &r.Position); err != nil {
			return nil, fmt.Errorf("scanning recent query row: %w", err)
		}
		recent = append(recent, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recent query rows: %w", err)
	}
	return recent, nil
}
