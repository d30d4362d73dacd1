package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store.
//
// Change notifications run synchronously on the goroutine that performed the
// write, after the store lock is released. Callbacks must not block; the
// engine's snapshot handler only enqueues a command, which satisfies this.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]Document
	subs   map[string]map[int]ChangeFunc
	nextID int

	// failNext, when set, makes the next write return this error.
	failNext error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		subs: make(map[string]map[int]ChangeFunc),
	}
}

// Get returns a copy of the user's document.
func (m *MemoryStore) Get(_ context.Context, userID string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

// Set writes fields, merging into the existing document when merge is true.
func (m *MemoryStore) Set(_ context.Context, userID string, fields Document, merge bool) error {
	m.mu.Lock()
	if err := m.takeFailure(); err != nil {
		m.mu.Unlock()
		return err
	}
	if merge {
		m.docs[userID] = m.docs[userID].Merge(fields)
	} else {
		m.docs[userID] = fields.Clone()
	}
	notify, doc := m.listeners(userID)
	m.mu.Unlock()

	deliver(notify, doc)
	return nil
}

// Update overlays fields on an existing document.
func (m *MemoryStore) Update(_ context.Context, userID string, fields Document) error {
	m.mu.Lock()
	if err := m.takeFailure(); err != nil {
		m.mu.Unlock()
		return err
	}
	existing, ok := m.docs[userID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("update %s: %w", userID, ErrNotFound)
	}
	m.docs[userID] = existing.Merge(fields)
	notify, doc := m.listeners(userID)
	m.mu.Unlock()

	deliver(notify, doc)
	return nil
}

// Subscribe registers onChange and immediately delivers the current
// document if one exists. onError is never called by MemoryStore.
func (m *MemoryStore) Subscribe(ctx context.Context, userID string, onChange ChangeFunc, _ ErrorFunc) (func(), error) {
	if onChange == nil {
		return nil, fmt.Errorf("subscribe %s: change callback is required", userID)
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[int]ChangeFunc)
	}
	m.subs[userID][id] = onChange
	current, exists := m.docs[userID]
	if exists {
		current = current.Clone()
	}
	m.mu.Unlock()

	if exists {
		onChange(current)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[userID], id)
			m.mu.Unlock()
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			release()
		}()
	}

	return release, nil
}

// FailNextWrite makes the next Set or Update return err. Used by tests to
// simulate a transient network failure.
func (m *MemoryStore) FailNextWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

// SubscriberCount reports live subscriptions for a user.
func (m *MemoryStore) SubscriberCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[userID])
}

func (m *MemoryStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// listeners snapshots the callbacks and document under the lock.
func (m *MemoryStore) listeners(userID string) ([]ChangeFunc, Document) {
	subs := m.subs[userID]
	if len(subs) == 0 {
		return nil, nil
	}
	// Deliver in registration order.
	fns := make([]ChangeFunc, 0, len(subs))
	for id := 0; id < m.nextID; id++ {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns, m.docs[userID].Clone()
}

func deliver(fns []ChangeFunc, doc Document) {
	for _, fn := range fns {
		fn(doc.Clone())
	}
}
