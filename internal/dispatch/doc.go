// Package dispatch routes polled events to a pool of workers while keeping
// per-conversation ordering. Each worker owns a bounded queue; a
// conversation key always hashes to the same queue, so its events are
// handled sequentially while unrelated conversations proceed in parallel.
package dispatch
