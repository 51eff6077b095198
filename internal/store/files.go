// ABOUTME: Shared file reference persistence for the file-sharing feature
// ABOUTME: Stores remote file references by short id, never file bytes

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SaveSharedFile upserts a shared file record.
func (s *SQLiteStore) SaveSharedFile(ctx context.Context, file *SharedFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shared_files (id, owner_id, file_ref, caption, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			file_ref = excluded.file_ref,
			caption = excluded.caption
	`, file.ID, file.OwnerID, file.FileRef, nullString(file.Caption),
		file.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting shared file: %w", err)
	}

	s.logger.Debug("saved shared file", "id", file.ID, "owner", file.OwnerID)
	return nil
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetSharedFile retrieves a shared file by id.
// Returns ErrNotFound if no such file exists.
func (s *SQLiteStore) GetSharedFile(ctx context.Context, id string) (*SharedFile, error) {
	var f SharedFile
	var caption sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, file_ref, caption, created_at
		FROM shared_files
		WHERE id = ?
	`, id).Scan(&f.ID, &f.OwnerID, &f.FileRef, &caption, &createdAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying shared file: %w", err)
	}

	if caption.Valid {
		f.Caption = caption.String
	}
	f.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &f, nil
}

// ListSharedFiles returns the files owned by a user, newest first.
func (s *SQLiteStore) ListSharedFiles(ctx context.Context, ownerID int64) ([]*SharedFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, file_ref, caption, created_at
		FROM shared_files
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying shared files: %w", err)
	}
	defer rows.Close()

	var files []*SharedFile
	for rows.Next() {
		var f SharedFile
		var caption sql.NullString
		var createdAtStr string

		if err := rows.Scan(&f.ID, &f.OwnerID, &f.FileRef, &caption, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning shared file row: %w", err)
		}
		if caption.Valid {
			f.Caption = caption.String
		}
		f.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		files = append(files, &f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating shared file rows: %w", err)
	}
	return files, nil
}

// DeleteSharedFile removes a shared file record.
// Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) DeleteSharedFile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM shared_files WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting shared file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted shared file", "id", id)
	return nil
}
