// ABOUTME: Scheduled alert persistence for the periodic push job
// ABOUTME: Uniqueness per (user, subject) prevents duplicate alerts

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAlert inserts a new alert. Returns ErrAlreadyExists if the user
// already has an alert for the same subject id or name.
func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *Alert) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, user_id, subject_id, subject_name, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, alert.ID, alert.UserID, alert.SubjectID, alert.SubjectName,
		alert.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if isConstraintViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("inserting alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrAlreadyExists
	}

	s.logger.Debug("created alert", "id", alert.ID, "user", alert.UserID, "subject", alert.SubjectID)
	return nil
}

// ListAlerts returns all alerts for one user, oldest first.
func (s *SQLiteStore) ListAlerts(ctx context.Context, userID int64) ([]*Alert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, user_id, subject_id, subject_name, created_at
		FROM alerts
		WHERE user_id = ?
		ORDER BY created_at
	`, userID)
}

// ListAllAlerts returns every alert, for the periodic delivery job.
func (s *SQLiteStore) ListAllAlerts(ctx context.Context) ([]*Alert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, user_id, subject_id, subject_name, created_at
		FROM alerts
		ORDER BY user_id, created_at
	`)
}

func (s *SQLiteStore) queryAlerts(ctx context.Context, query string, args ...any) ([]*Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var a Alert
		var createdAtStr string
		if err := rows.Scan(&a.ID, &a.UserID, &a.SubjectID, &a.SubjectName, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning alert row: %w", err)
		}
		a.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		alerts = append(alerts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alert rows: %w", err)
	}
	return alerts, nil
}

// DeleteAlert removes one alert by id. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteAlert(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting alert: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted alert", "id", id)
	return nil
}

// DeleteAlertsForUser removes every alert for a user. Used when the remote
// platform reports the recipient as permanently unreachable.
func (s *SQLiteStore) DeleteAlertsForUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("deleting alerts for user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows > 0 {
		s.logger.Info("deleted alerts for unreachable user", "user", userID, "count", rows)
	}
	return nil
}

// GetCursor reads the last persisted cursor for a token, 0 if none exists.
func (s *SQLiteStore) GetCursor(ctx context.Context, token string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cursors WHERE token = ?`, token).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying cursor: %w", err)
	}
	return value, nil
}

// PutCursor upserts the cursor for a token. The cursor never moves backwards.
func (s *SQLiteStore) PutCursor(ctx context.Context, token string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (token, value)
		VALUES (?, ?)
		ON CONFLICT (token) DO UPDATE SET value = excluded.value
		WHERE excluded.value > cursors.value
	`, token, value)
	if err != nil {
		return fmt.Errorf("writing cursor: %w", err)
	}
	return nil
}
