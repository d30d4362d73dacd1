// Package engine implements the pomoflo session engine.
//
// The engine binds the timer state machine, settings, rewards, daily
// progress, the sound arbiter and the motion trigger into one controller.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every mutation is a Command processed to completion on one goroutine
// before the next begins. The tick timer, motion samples, user input and
// remote snapshots are independent producers feeding the same FIFO queue,
// so no two mutations interleave (a tick completing a phase can never race
// a manual reset).
//
// Command Processing Flow:
//  1. Commands enqueued to the FIFO queue (Enqueue, or Do to wait for the result)
//  2. Run() dequeues commands one at a time; its ticker injects Tick commands
//  3. Before every command the countdown is recomputed from the wall clock
//  4. The command is applied and emits Events stamped with a logical seq
//  5. The read-only View is refreshed, listeners receive the Batch, and
//     the caller's reply is sent
//
// CRITICAL PATTERNS:
//
// Logical Sequence:
// Events are ordered by a monotonic seq counter, never by timestamps.
//
// Origin Tagging:
// Events caused by applying a remote snapshot carry OriginRemote. The sync
// layer only pushes OriginLocal changes, so snapshots are never echoed back.
//
// Log and Continue:
// A failing command (pause while idle, unknown sound) is logged, its error is
// returned to a waiting caller, and the loop keeps going.
package engine
