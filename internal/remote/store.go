package remote

import "context"

// ChangeFunc receives the full current document after every change.
type ChangeFunc func(Document)

// ErrorFunc receives subscription errors. A subscription keeps running
// after reporting an error; callers must not reset local state in response.
type ErrorFunc func(error)

// Store is the per-user remote document store.
type Store interface {
	Get(ctx context.Context, userID string) (Document, error)
	Set(ctx context.Context, userID string, fields Document, merge bool) error
	Update(ctx context.Context, userID string, fields Document) error
	Subscribe(ctx context.Context, userID string, onChange ChangeFunc, onError ErrorFunc) (func(), error)
}
