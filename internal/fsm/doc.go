// Package fsm is the conversation engine: a shared execution contract for
// per-feature finite-state machines. A machine is a data-driven table of
// matcher/handler rules per state; the engine folds events over the table,
// applying a uniform policy for cancel, unrecognized input and reply
// correlation, and owns the durable ordering of effect writes, the state
// write and the outbound send.
package fsm
