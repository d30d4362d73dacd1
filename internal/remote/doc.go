// Package remote defines the per-user document store the session engine
// synchronises against, plus two implementations of it.
//
// A Document is a flat map of top-level fields. Values are restricted to
// string, int64, bool, []any and map[string]any so every document has a
// canonical JSON form (see internal/canonical). Floats never appear: all
// durations and counters are whole numbers.
//
// # Store contract
//
//   - Get returns ErrNotFound when the user has no document yet.
//   - Set with merge=true overlays the given top-level fields; merge=false
//     replaces the whole document. Set never fails because the document is
//     missing.
//   - Update overlays fields on an existing document and returns ErrNotFound
//     otherwise.
//   - Subscribe delivers the full current document once on registration (if
//     it exists) and again after every change, until the returned release
//     func is called or the context ends.
//
// MemoryStore keeps documents in process. HTTPStore is a client for the
// document API served by internal/server. The SQLite implementation lives in
// internal/store.
package remote
