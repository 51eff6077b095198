// Package ingest pulls events from the messaging platform with long polls
// and a durable per-token cursor. Delivery downstream is at-least-once: the
// cursor advances only after a batch is enqueued, so restarts replay rather
// than skip.
package ingest
