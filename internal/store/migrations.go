// ABOUTME: Versioned schema migrations for the chatflow database
// ABOUTME: Ordered, idempotent steps applied in one transaction at startup

package store

import (
	"database/sql"
	"fmt"
)

// migration is one version-to-version schema step. DDL must be re-runnable
// (CREATE IF NOT EXISTS) so a partially applied step is safe to repeat.
type migration struct {
	version int
	ddl     string
}

var migrations = []migration{
	{
		version: 1,
		ddl: `
			CREATE TABLE IF NOT EXISTS conversation_state (
				user_id      INTEGER NOT NULL,
				chat_id      INTEGER NOT NULL,
				conversation TEXT NOT NULL,
				state        INTEGER NOT NULL,
				aux_json     TEXT NOT NULL DEFAULT '{}',
				updated_at   TEXT NOT NULL,
				PRIMARY KEY (user_id, chat_id, conversation)
			);

			CREATE TABLE IF NOT EXISTS user_prefs (
				user_id    INTEGER PRIMARY KEY,
				language   TEXT NOT NULL,
				units      TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			CREATE TABLE IF NOT EXISTS recent_queries (
				user_id      INTEGER NOT NULL,
				subject_id   TEXT NOT NULL,
				subject_name TEXT NOT NULL,
				position     INTEGER NOT NULL,
				PRIMARY KEY (user_id, subject_id)
			);

			CREATE INDEX IF NOT EXISTS idx_recent_user_position
				ON recent_queries(user_id, position DESC);

			CREATE TABLE IF NOT EXISTS cursors (
				token TEXT PRIMARY KEY,
				value INTEGER NOT NULL
			);
		`,
	},
	{
		version: 2,
		ddl: `
			CREATE TABLE IF NOT EXISTS alerts (
				id           TEXT PRIMARY KEY,
				user_id      INTEGER NOT NULL,
				subject_id   TEXT NOT NULL,
				subject_name TEXT NOT NULL,
				created_at   TEXT NOT NULL,

				UNIQUE (user_id, subject_id),
				UNIQUE (user_id, subject_name)
			);

			CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);
		`,
	},
	{
		version: 3,
		ddl: `
			CREATE TABLE IF NOT EXISTS relay_subscriptions (
				channel TEXT NOT NULL,
				chat_id INTEGER NOT NULL,
				PRIMARY KEY (channel, chat_id)
			);

			CREATE INDEX IF NOT EXISTS idx_relay_chat ON relay_subscriptions(chat_id);
		`,
	},
	{
		version: 4,
		ddl: `
			CREATE TABLE IF NOT EXISTS shared_files (
				id         TEXT PRIMARY KEY,
				owner_id   INTEGER NOT NULL,
				file_ref   TEXT NOT NULL,
				caption    TEXT,
				created_at TEXT NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_shared_files_owner ON shared_files(owner_id);
		`,
	},
}

// migrate brings the schema up to the latest version. The whole upgrade runs
// in a single transaction: either every pending step applies and the version
// token records the target, or nothing changes.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.schemaVersion()
	if err != nil {
		return err
	}

	target := migrations[len(migrations)-1].version
	if current >= target {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.Exec(m.ddl); err != nil {
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if err := setSchemaVersion(tx, m.version); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		s.logger.Info("applied migration", "version", m.version)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migrations: %w", err)
	}
	return nil
}

// schemaVersion reads the highest applied migration number, 0 for a fresh database.
func (s *SQLiteStore) schemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	result, err := tx.Exec(`UPDATE schema_version SET version = ?`, version)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		_, err = tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version)
	}
	return err
}
