// Package store provides SQLite-backed storage for per-user remote documents.
//
// Each user has one row holding the document body as canonical JSON, its
// content fingerprint and a revision counter. The store implements
// remote.Store, so it can stand in for the cloud document service on a
// single machine, and it backs the HTTP document server for multi-device
// setups.
//
// # Critical Patterns
//
// Revisions only move on content change:
//   - A write whose resulting body has the same fingerprint as the stored
//     body is a no-op. Echoed writes therefore never wake watchers.
//
// Change delivery:
//   - Writes through this process close a broadcast channel, waking every
//     Watch immediately.
//   - Writes by other processes sharing the file are found by polling the
//     revision column every poll interval.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
