package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pomoflo/internal/canonical"
	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/settings"
)

// echoDepth is how many pushed values per field are remembered for echo
// suppression.
const echoDepth = 16

// Enqueuer accepts engine commands. *engine.Engine satisfies it.
type Enqueuer interface {
	Enqueue(cmd engine.Command) bool
}

// Reconciler mirrors local engine state into one user's remote document and
// feeds remote changes back as snapshots.
//
// CRITICAL: writes are issued by the single Run goroutine, in the order the
// local events happened, so a stale value never overwrites a newer one.
//
// Thread-safety model:
//   - Observe(), Attach(), Flush(), Close(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Reconciler struct {
	store    remote.Store
	userID   string
	defaults remote.Document

	onFailure  func(error)
	minBackoff time.Duration
	maxBackoff time.Duration

	mu       sync.Mutex
	pending  remote.Document
	inflight remote.Document
	closed   bool
	pushed   map[string][]string
	signal   chan struct{}
	idle     chan struct{}
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithFailureHandler receives every write and subscription failure.
// Typically it enqueues engine.ReportSyncFailure.
func WithFailureHandler(fn func(error)) Option {
	return func(r *Reconciler) { r.onFailure = fn }
}

// WithDefaults sets the document merged under the first write when the
// document does not exist yet. Default: DefaultDocument(settings.Default()).
func WithDefaults(doc remote.Document) Option {
	return func(r *Reconciler) { r.defaults = doc.Clone() }
}

// WithBackoff sets the retry delay bounds after a failed write.
func WithBackoff(min, max time.Duration) Option {
	return func(r *Reconciler) {
		if min > 0 {
			r.minBackoff = min
		}
		if max >= r.minBackoff {
			r.maxBackoff = max
		}
	}
}

// New creates a reconciler for userID.
func New(store remote.Store, userID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		userID:     userID,
		defaults:   DefaultDocument(settings.Default()),
		onFailure:  func(error) {},
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
		pushed:     make(map[string][]string),
		signal:     make(chan struct{}, 1),
		idle:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserID is the document key this reconciler writes.
func (r *Reconciler) UserID() string {
	return r.userID
}

// EnsureDocument creates the user's document from defaults when it does not
// exist. It reports whether a document was created.
func (r *Reconciler) EnsureDocument(ctx context.Context, defaults remote.Document) (bool, error) {
	_, err := r.store.Get(ctx, r.userID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, remote.ErrNotFound) {
		return false, fmt.Errorf("ensure document %s: %w", r.userID, err)
	}
	if defaults == nil {
		defaults = r.defaults
	}
	if err := r.store.Set(ctx, r.userID, defaults, true); err != nil {
		return false, fmt.Errorf("ensure document %s: %w", r.userID, err)
	}
	slog.Info("remote document created", "user", r.userID)
	return true, nil
}

// Observe queues the mirrored fields changed by a batch. Events that came
// from applying a remote snapshot are skipped so they are never echoed back.
// It never blocks, so it can be registered directly as an engine.Listener.
func (r *Reconciler) Observe(b engine.Batch) {
	var fields remote.Document
	for _, ev := range b.Events {
		if ev.Origin != engine.OriginLocal {
			continue
		}
		if f := FieldsFor(ev, b.View); f != nil {
			fields = fields.Merge(f)
		}
	}
	if len(fields) == 0 {
		return
	}
	r.Push(fields)
}

// Push queues fields for writing. Consecutive pushes coalesce: a field
// queued twice is written once with its latest value.
func (r *Reconciler) Push(fields remote.Document) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.pending = r.pending.Merge(fields)
	r.notify()
	return true
}

// Run drains queued writes until ctx ends or Close is called and the
// queue is empty. A failed write is reported, kept queued beneath any newer
// values and retried with capped exponential backoff.
func (r *Reconciler) Run(ctx context.Context) error {
	slog.Info("reconciler starting", "user", r.userID)
	backoff := r.minBackoff

	for {
		fields, ok, closed := r.take()
		if !ok {
			if closed {
				slog.Info("reconciler stopping: closed", "user", r.userID)
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.signal:
			}
			continue
		}

		err := r.write(ctx, fields)
		if err == nil {
			backoff = r.minBackoff
			r.settle()
			continue
		}
		if ctx.Err() != nil {
			r.requeue(fields)
			return ctx.Err()
		}

		slog.Warn("remote write failed", "user", r.userID, "error", err, "retry_in", backoff)
		r.onFailure(err)
		if closed {
			r.drop()
			return err
		}
		r.requeue(fields)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// Drain writes everything queued on the calling goroutine and returns the
// first failure, leaving the failed fields queued. It must not be used while
// Run is active.
func (r *Reconciler) Drain(ctx context.Context) error {
	for {
		fields, ok, _ := r.take()
		if !ok {
			return nil
		}
		if err := r.write(ctx, fields); err != nil {
			r.requeue(fields)
			r.onFailure(err)
			return err
		}
		r.settle()
	}
}

// Flush waits until every queued write has been acknowledged.
func (r *Reconciler) Flush(ctx context.Context) error {
	for {
		r.mu.Lock()
		if len(r.pending) == 0 && r.inflight == nil {
			r.mu.Unlock()
			return nil
		}
		idle := r.idle
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle:
		}
	}
}

// Close stops accepting new fields. Run writes what is already queued and
// then returns.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.notify()
}

// Attach subscribes to the remote document and enqueues an ApplySnapshot
// command for every delivered version. Fields that merely echo this
// reconciler's own writes, or that have newer local values still queued,
// are left out of the snapshot.
//
// Subscription errors are logged and reported; local state is never reset
// because of them. The returned func releases the subscription.
func (r *Reconciler) Attach(ctx context.Context, target Enqueuer) (func(), error) {
	onChange := func(doc remote.Document) {
		state := Decode(r.filter(doc))
		if state.IsZero() {
			return
		}
		if !target.Enqueue(engine.ApplySnapshot(state)) {
			slog.Debug("snapshot dropped: engine stopped", "user", r.userID)
		}
	}
	onError := func(err error) {
		slog.Warn("remote subscription error", "user", r.userID, "error", err)
		r.onFailure(err)
	}

	release, err := r.store.Subscribe(ctx, r.userID, onChange, onError)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", r.userID, err)
	}
	return release, nil
}

// write upserts fields: Update first, then Set with merge on top of the
// defaults when the document is missing.
func (r *Reconciler) write(ctx context.Context, fields remote.Document) error {
	prints := r.remember(fields)

	err := r.store.Update(ctx, r.userID, fields)
	if errors.Is(err, remote.ErrNotFound) {
		slog.Debug("remote document missing, creating", "user", r.userID)
		err = r.store.Set(ctx, r.userID, r.defaults.Merge(fields), true)
	}
	if err != nil {
		r.forget(prints)
		return fmt.Errorf("push %s: %w", r.userID, err)
	}
	return nil
}

// take pops the coalesced pending fields.
func (r *Reconciler) take() (remote.Document, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil, false, r.closed
	}
	fields := r.pending
	r.pending = nil
	r.inflight = fields
	return fields, true, r.closed
}

// requeue puts failed fields back beneath anything queued since.
func (r *Reconciler) requeue(fields remote.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = fields.Merge(r.pending)
	r.inflight = nil
}

func (r *Reconciler) drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.inflight = nil
	r.wakeIdle()
}

// settle marks the in-flight write done and wakes Flush callers when the
// queue is empty.
func (r *Reconciler) settle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight = nil
	if len(r.pending) == 0 {
		r.wakeIdle()
	}
}

// wakeIdle must be called with r.mu held.
func (r *Reconciler) wakeIdle() {
	close(r.idle)
	r.idle = make(chan struct{})
}

// notify must be called with r.mu held.
func (r *Reconciler) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

type fieldPrint struct {
	field string
	print string
}

// remember records the fingerprint of each field about to be written.
func (r *Reconciler) remember(fields remote.Document) []fieldPrint {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []fieldPrint
	for k, v := range fields {
		fp, err := canonical.Fingerprint(v)
		if err != nil {
			continue
		}
		ring := append(r.pushed[k], fp)
		if len(ring) > echoDepth {
			ring = ring[len(ring)-echoDepth:]
		}
		r.pushed[k] = ring
		out = append(out, fieldPrint{field: k, print: fp})
	}
	return out
}

// forget removes fingerprints of a write that did not happen.
func (r *Reconciler) forget(prints []fieldPrint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range prints {
		ring := r.pushed[p.field]
		for i := len(ring) - 1; i >= 0; i-- {
			if ring[i] == p.print {
				r.pushed[p.field] = append(ring[:i:i], ring[i+1:]...)
				break
			}
		}
	}
}

// filter returns doc without the fields that echo our own writes or that
// have newer local values queued or in flight.
//
// An echoed value is consumed along with every older pushed value, since the
// store delivers in write order. Any other value means the document moved
// past our writes, so the field's history is dropped and the value applies.
func (r *Reconciler) filter(doc remote.Document) remote.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(remote.Document, len(doc))
	for k, v := range doc {
		ring := r.pushed[k]
		if len(ring) > 0 {
			if fp, err := canonical.Fingerprint(v); err == nil {
				if i := indexOf(ring, fp); i >= 0 {
					r.pushed[k] = ring[i+1:]
					continue
				}
			}
		}
		if r.localNewer(k) {
			continue
		}
		delete(r.pushed, k)
		out[k] = v
	}
	return out
}

// localNewer must be called with r.mu held.
func (r *Reconciler) localNewer(field string) bool {
	if _, ok := r.pending[field]; ok {
		return true
	}
	_, ok := r.inflight[field]
	return ok
}

func indexOf(ring []string, s string) int {
	for i, v := range ring {
		if v == s {
			return i
		}
	}
	return -1
}
