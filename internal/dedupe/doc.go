// Package dedupe suppresses reprocessing of recently seen events within a
// configurable window. It is a throughput optimization only; correctness
// under redelivery rests on the store's idempotent writes.
package dedupe
