package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/progress"
	"github.com/roach88/pomoflo/internal/reward"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
)

// DefaultTickInterval is how often Run asks the countdown to recompute.
const DefaultTickInterval = time.Second

// Engine is the single-writer session controller.
//
// CRITICAL: All mutations happen in the single-writer Run loop goroutine.
// External callers use Enqueue() or Do() to submit commands.
//
// Thread-safety model:
//   - Enqueue(), Do(), Snapshot(), Stop(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Step(): only when Run is not running (tests, scenario harness)
type Engine struct {
	clock        session.Clock
	seq          *Sequence
	sessionID    string
	queue        *commandQueue
	tickInterval time.Duration
	listeners    []Listener

	machine  *session.Machine
	settings *settings.Store
	rewards  *reward.Ledger
	progress *progress.Ledger
	sound    *sound.Arbiter
	motion   *motion.Trigger

	viewMu sync.RWMutex
	view   View

	done     chan struct{}
	doneOnce sync.Once
}

type options struct {
	clock        session.Clock
	ids          IDGenerator
	seq          *Sequence
	settings     settings.Settings
	catalog      sound.Catalog
	motion       motion.Options
	tickInterval time.Duration
	listeners    []Listener
}

// Option configures an Engine.
type Option func(*options)

// WithClock sets the wall clock. Default: session.SystemClock.
func WithClock(c session.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDs sets the session id generator. Default: UUIDv7Generator.
func WithIDs(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithSequence resumes event numbering from an existing sequence.
func WithSequence(s *Sequence) Option {
	return func(o *options) { o.seq = s }
}

// WithSettings sets the initial settings (clamped). Default: settings.Default().
func WithSettings(s settings.Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithCatalog sets the sound catalog. Default: sound.DefaultCatalog().
func WithCatalog(c sound.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithMotion sets the motion trigger options. Default: motion.DefaultOptions().
func WithMotion(m motion.Options) Option {
	return func(o *options) { o.motion = m }
}

// WithTickInterval sets how often Run recomputes the countdown.
func WithTickInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.tickInterval = d
		}
	}
}

// WithListener registers a batch listener. Listeners are called in
// registration order.
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// New creates an engine that plays sounds through player.
func New(player sound.Player, opts ...Option) *Engine {
	o := options{
		clock:        session.SystemClock{},
		ids:          UUIDv7Generator{},
		settings:     settings.Default(),
		motion:       motion.DefaultOptions(),
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.seq == nil {
		o.seq = NewSequence()
	}

	store := settings.NewStore(o.settings)
	e := &Engine{
		clock:        o.clock,
		seq:          o.seq,
		sessionID:    o.ids.New(),
		queue:        newCommandQueue(),
		tickInterval: o.tickInterval,
		listeners:    o.listeners,
		machine:      session.New(o.clock, store.Current()),
		settings:     store,
		rewards:      reward.NewLedger(0),
		progress:     progress.NewLedger(),
		sound:        sound.NewArbiter(player, o.catalog),
		motion:       motion.NewTrigger(o.motion),
		done:         make(chan struct{}),
	}
	e.view = e.buildView()
	return e
}

// SessionID identifies this engine instance in events and logs.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// Enqueue submits a command for processing by the Run loop.
// Thread-safe: may be called from any goroutine.
//
// Returns false if the engine has been stopped.
func (e *Engine) Enqueue(cmd Command) bool {
	return e.queue.Enqueue(cmd)
}

// Do submits cmd and waits until it has been applied. The returned error is
// the command's own error (for example an invalid transition), ctx.Err(), or
// ErrStopped.
func (e *Engine) Do(ctx context.Context, cmd Command) (Result, error) {
	cmd.reply = make(chan Result, 1)
	if !e.queue.Enqueue(cmd) {
		return Result{Err: ErrStopped}, ErrStopped
	}

	select {
	case r := <-cmd.reply:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-e.done:
		select {
		case r := <-cmd.reply:
			return r, r.Err
		default:
			return Result{Err: ErrStopped}, ErrStopped
		}
	}
}

// UpdateSettings applies p and returns the accepted (clamped) settings.
func (e *Engine) UpdateSettings(ctx context.Context, p settings.Partial) (settings.Settings, error) {
	r, err := e.Do(ctx, UpdateSettings(p))
	if err != nil {
		return settings.Settings{}, err
	}
	return r.View.Settings, nil
}

// Snapshot returns the view as of the last processed command.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Snapshot() View {
	e.viewMu.RLock()
	defer e.viewMu.RUnlock()
	return e.view
}

// Step processes cmd synchronously on the calling goroutine. It must not be
// used while Run is active.
func (e *Engine) Step(cmd Command) Result {
	return e.process(cmd)
}

// Run starts the single-writer event loop.
// Blocks until context is cancelled or Stop() is called.
//
// CRITICAL: Must be called from exactly ONE goroutine.
//
// ERROR HANDLING: On command failure, the error is logged with the command
// context and processing continues ("log and continue").
//
// On return the tick timer is stopped, playback is released and commands
// still queued are answered with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "session", e.sessionID, "tick", e.tickInterval)

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	defer e.finish()

	for {
		if cmd, ok := e.queue.TryDequeue(); ok {
			e.process(cmd)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled", "session", e.sessionID)
			e.queue.Close()
			return ctx.Err()

		case <-ticker.C:
			e.process(Tick())

		case <-e.queue.Wait():
			if e.queue.Drained() {
				slog.Info("engine stopping: queue closed", "session", e.sessionID)
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the command queue, which will cause Run() to return once the
// commands already queued are processed.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Done is closed once Run has returned.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Shutdown releases resources when the engine is driven by Step instead of
// Run.
func (e *Engine) Shutdown() {
	e.queue.Close()
	e.finish()
}

func (e *Engine) finish() {
	e.doneOnce.Do(func() {
		if _, err := e.sound.Stop(); err != nil {
			slog.Warn("releasing sound on shutdown failed", "error", err)
		}
		for {
			cmd, ok := e.queue.TryDequeue()
			if !ok {
				break
			}
			if cmd.reply != nil {
				cmd.reply <- Result{Err: ErrStopped}
			}
		}
		close(e.done)
	})
}

// process applies one command.
// CRITICAL: Called only from the Run() goroutine (or Step) - single-writer guarantee.
func (e *Engine) process(cmd Command) Result {
	ev := &recorder{e: e}

	// Every command sees an up-to-date countdown, so a reset or pause can
	// never act on stale remaining time.
	e.advance(ev)

	err := e.apply(ev, cmd)
	if err != nil {
		logCommandError(cmd, err)
	}

	view := e.buildView()
	e.viewMu.Lock()
	e.view = view
	e.viewMu.Unlock()

	if len(ev.events) > 0 {
		batch := Batch{Command: cmd.Kind, Events: ev.events, View: view}
		for _, l := range e.listeners {
			l(batch)
		}
	}

	res := Result{Events: ev.events, View: view, Err: err}
	if cmd.reply != nil {
		cmd.reply <- res
	}
	return res
}

// recorder collects the events of one command.
type recorder struct {
	e      *Engine
	events []Event
}

func (r *recorder) add(typ EventType, origin Origin, fields map[string]any) {
	r.events = append(r.events, Event{
		Seq:     r.e.seq.Next(),
		Session: r.e.sessionID,
		Type:    typ,
		Origin:  origin,
		At:      r.e.clock.Now(),
		Fields:  fields,
	})
}

func (r *recorder) local(typ EventType, fields map[string]any) {
	r.add(typ, OriginLocal, fields)
}

func logCommandError(cmd Command, err error) {
	if IsInvalidTransition(err) {
		slog.Debug("command rejected", "command", cmd.Kind, "error", err)
		return
	}
	slog.Warn("command failed",
		"command", cmd.Kind,
		"phase", cmd.Phase,
		"sound", cmd.SoundID,
		"error", err,
	)
}
