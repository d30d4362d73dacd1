package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pomoflo/internal/remote"
)

// Watch blocks until the user's revision exceeds after and returns that
// record. It returns ctx.Err() when ctx ends first.
func (s *Store) Watch(ctx context.Context, userID string, after int64) (Record, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		// Grab the channel before reading so a write between the read and
		// the wait still wakes us.
		changed := s.changes()

		// Polls only read the revision; the body is loaded once it moves.
		rev, err := s.Revision(ctx, userID)
		if err != nil {
			return Record{}, err
		}
		if rev > after {
			rec, err := s.Record(ctx, userID)
			switch {
			case err == nil && rec.Revision > after:
				return rec, nil
			case err != nil && !errors.Is(err, remote.ErrNotFound):
				return Record{}, err
			}
		}

		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

// Subscribe delivers the current document (if present) and every later
// revision to onChange from a single goroutine, in revision order. Read
// errors go to onError and the subscription keeps going. The returned func
// stops the subscription and waits for the goroutine to exit; it must not be
// called from inside onChange.
func (s *Store) Subscribe(ctx context.Context, userID string, onChange remote.ChangeFunc, onError remote.ErrorFunc) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var rev int64
		for {
			rec, err := s.Watch(ctx, userID, rev)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("document watch failed", "user", userID, "error", err)
				if onError != nil {
					onError(err)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.pollInterval):
				}
				continue
			}
			rev = rec.Revision
			onChange(rec.Document)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}

var _ remote.Store = (*Store)(nil)
