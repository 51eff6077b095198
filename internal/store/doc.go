// Package store provides persistent storage for chatflow using SQLite.
//
// # Architecture
//
// All durable state lives here: conversation FSM rows, user preferences,
// the bounded recent-query history, scheduled alerts, relay subscriptions,
// shared file references and the per-token ingestion cursors. Other
// packages never touch the database directly; they depend on the Store
// interface (or a narrower consumer-defined slice of it).
//
// # Data Models
//
//   - ConversationState: one row per (user, chat, conversation) with an
//     integer state code and a JSON aux payload
//   - Preferences: per-user language and unit system
//   - RecentQuery: FIFO-capped lookup history, deduplicated by subject
//   - Alert: scheduled push subscription, unique per (user, subject)
//   - relay subscriptions: channel to destination chat mappings
//   - SharedFile: stored reference to an uploaded document
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrAlreadyExists: a uniqueness constraint rejected a create
//
// Writes are idempotent upserts so callers may retry after ambiguous
// failures. All methods accept context.Context for cancellation support.
//
// # Migrations
//
// The schema is versioned. On startup pending migration steps run in one
// transaction; a failure is fatal and the process must not start serving.
// Every step uses re-runnable DDL so a partial prior attempt is harmless.
package store
