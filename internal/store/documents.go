package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pomoflo/internal/canonical"
	"github.com/roach88/pomoflo/internal/remote"
)

// Record is a stored document with its revision.
type Record struct {
	UserID      string
	Document    remote.Document
	Fingerprint string
	Revision    int64
	UpdatedAt   time.Time
}

// Get returns the user's document or remote.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID string) (remote.Document, error) {
	rec, err := s.Record(ctx, userID)
	if err != nil {
		return nil, err
	}
	return rec.Document, nil
}

// Record returns the user's document with its revision metadata.
func (s *Store) Record(ctx context.Context, userID string) (Record, error) {
	rec, err := readRecord(ctx, s.db, userID)
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", userID, err)
	}
	return rec, nil
}

// Revision returns the user's current revision, 0 when absent.
func (s *Store) Revision(ctx context.Context, userID string) (int64, error) {
	var rev int64
	err := s.db.QueryRowContext(ctx, `SELECT revision FROM documents WHERE user_id = ?`, userID).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("revision %s: %w", userID, err)
	}
	return rev, nil
}

// Set writes fields. With merge the top-level fields overlay the stored
// document (creating it if absent); without merge they replace it.
func (s *Store) Set(ctx context.Context, userID string, fields remote.Document, merge bool) error {
	_, err := s.write(ctx, userID, func(current remote.Document, exists bool) (remote.Document, error) {
		if merge && exists {
			return current.Merge(fields), nil
		}
		return remote.Document(nil).Merge(fields), nil
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", userID, err)
	}
	return nil
}

// Update overlays fields on an existing document. It returns
// remote.ErrNotFound when the user has no document.
func (s *Store) Update(ctx context.Context, userID string, fields remote.Document) error {
	_, err := s.write(ctx, userID, func(current remote.Document, exists bool) (remote.Document, error) {
		if !exists {
			return nil, remote.ErrNotFound
		}
		return current.Merge(fields), nil
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", userID, err)
	}
	return nil
}

// write runs mutate inside a transaction and stores the result. It returns
// the new revision, or the unchanged one when the content did not change.
func (s *Store) write(ctx context.Context, userID string, mutate func(remote.Document, bool) (remote.Document, error)) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	current, err := readRecord(ctx, tx, userID)
	exists := err == nil
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		return 0, err
	}

	next, err := mutate(current.Document, exists)
	if err != nil {
		return 0, err
	}
	next = remote.NormalizeDocument(next)

	body, err := canonical.Marshal(next)
	if err != nil {
		return 0, fmt.Errorf("marshal document: %w", err)
	}
	fp, err := canonical.Fingerprint(next)
	if err != nil {
		return 0, err
	}
	if exists && fp == current.Fingerprint {
		return current.Revision, nil
	}

	rev := current.Revision + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (user_id, body, fingerprint, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			body = excluded.body,
			fingerprint = excluded.fingerprint,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, userID, string(body), fp, rev, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("write document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.broadcast()
	return rev, nil
}

// Users lists user ids, most recently updated first.
func (s *Store) Users(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM documents ORDER BY updated_at DESC, user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readRecord(ctx context.Context, q queryRower, userID string) (Record, error) {
	var (
		body      string
		rec       = Record{UserID: userID}
		updatedAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT body, fingerprint, revision, updated_at
		FROM documents WHERE user_id = ?
	`, userID).Scan(&body, &rec.Fingerprint, &rec.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{UserID: userID}, remote.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("read document: %w", err)
	}

	doc, err := decodeBody(body)
	if err != nil {
		return Record{}, err
	}
	rec.Document = doc
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func decodeBody(body string) (remote.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return remote.NormalizeDocument(raw), nil
}
