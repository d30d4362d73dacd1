package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/reconcile"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
	"github.com/roach88/pomoflo/internal/testutil"
)

// UserID is the remote document every scenario writes.
const UserID = "scenario-user"

// maxSettleRounds bounds how many write/apply exchanges one step may cause
// before the harness gives up on the sync loop.
const maxSettleRounds = 16

// Harness is the scenario execution engine.
// It drives a real engine and reconciler on the calling goroutine with a
// fake clock, fixed session ids, a recording player and an in-memory
// remote store, so every run of a scenario yields the same trace.
type Harness struct {
	engine     *engine.Engine
	clock      *testutil.FakeClock
	player     *testutil.RecordingPlayer
	store      *remote.MemoryStore
	reconciler *reconcile.Reconciler
	inbox      *inbox
	release    func()
	logger     *slog.Logger
}

// inbox collects the commands the reconciler produces (snapshots and sync
// failures) so the harness can apply them in order.
type inbox struct {
	mu   sync.Mutex
	cmds []engine.Command
}

func (b *inbox) Enqueue(cmd engine.Command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cmds = append(b.cmds, cmd)
	return true
}

func (b *inbox) take() []engine.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmds := b.cmds
	b.cmds = nil
	return cmds
}

// Run executes a scenario and returns the result.
//
// Execution flow:
// 1. Seed the remote document (defaults merged with scenario.Remote)
// 2. Attach the reconciler and apply the initial snapshot
// 3. Execute steps, settling the sync loop after each one
// 4. Capture the final view, remote document and player log
// 5. Evaluate assertions
//
// A returned error means the scenario could not be executed at all; step
// and assertion failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	if err := h.settle(ctx, result); err != nil {
		return nil, fmt.Errorf("initial sync: %w", err)
	}

	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.View = h.engine.Snapshot()
	doc, err := h.store.Get(ctx, UserID)
	if err != nil {
		return nil, fmt.Errorf("read remote document: %w", err)
	}
	result.Remote = doc
	result.PlayerCalls = h.player.Calls()
	result.MaxActive = h.player.MaxActive()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(ctx context.Context, s *Scenario) (*Harness, error) {
	cfg := settings.Default()
	if s.Settings != nil {
		cfg = s.Settings.Clamp()
	}
	catalog := sound.DefaultCatalog()
	if len(s.Sounds) > 0 {
		catalog = sound.Catalog(s.Sounds)
	}
	var failing []string
	for _, id := range s.FailSounds {
		if res, ok := catalog[id]; ok {
			failing = append(failing, res)
		}
	}

	h := &Harness{
		clock:  testutil.NewFakeClock(time.Time{}),
		player: testutil.NewRecordingPlayer(failing...),
		store:  remote.NewMemoryStore(),
		inbox:  &inbox{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	defaults := reconcile.DefaultDocument(cfg)
	h.reconciler = reconcile.New(h.store, UserID,
		reconcile.WithDefaults(defaults),
		reconcile.WithFailureHandler(func(err error) {
			h.inbox.Enqueue(engine.ReportSyncFailure(err))
		}),
	)
	h.engine = engine.New(h.player,
		engine.WithClock(h.clock),
		engine.WithIDs(testutil.NewFixedIDs("scenario")),
		engine.WithSettings(cfg),
		engine.WithCatalog(catalog),
		engine.WithListener(h.reconciler.Observe),
	)

	initial := defaults.Merge(remote.NormalizeDocument(s.Remote))
	if err := h.store.Set(ctx, UserID, initial, false); err != nil {
		h.engine.Shutdown()
		return nil, fmt.Errorf("seed remote document: %w", err)
	}
	release, err := h.reconciler.Attach(ctx, h.inbox)
	if err != nil {
		h.engine.Shutdown()
		return nil, err
	}
	h.release = release
	return h, nil
}

func (h *Harness) close() {
	if h.release != nil {
		h.release()
	}
	h.reconciler.Close()
	h.engine.Shutdown()
}

// execute runs one step and then lets the sync loop settle.
func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Advance != "":
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		h.apply(result, engine.Tick())

	case step.Remote != nil:
		if err := h.store.Update(ctx, UserID, remote.NormalizeDocument(step.Remote)); err != nil {
			return fmt.Errorf("remote write: %w", err)
		}

	case step.FailWrite != "":
		h.store.FailNextWrite(errors.New(step.FailWrite))

	default:
		cmd, err := commandFor(step)
		if err != nil {
			return err
		}
		res := h.apply(result, cmd)
		switch {
		case res.Err != nil && !step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", i, step.Do, res.Err))
		case res.Err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s: expected an error, command succeeded", i, step.Do))
		}
	}

	h.logger.Info("step completed", "step", i, "do", step.Do, "trace_len", len(result.Trace))
	return h.settle(ctx, result)
}

// settle writes queued fields and applies whatever the store fed back
// until neither side has anything left. Failed writes are reported through
// the inbox and retried on the next round.
func (h *Harness) settle(ctx context.Context, result *Result) error {
	for round := 0; round < maxSettleRounds; round++ {
		if err := h.reconciler.Drain(ctx); err != nil {
			h.logger.Info("remote write failed", "round", round, "error", err)
		}
		cmds := h.inbox.take()
		if len(cmds) == 0 {
			return nil
		}
		for _, cmd := range cmds {
			h.apply(result, cmd)
		}
	}
	return fmt.Errorf("sync did not settle after %d rounds", maxSettleRounds)
}

func (h *Harness) apply(result *Result, cmd engine.Command) engine.Result {
	res := h.engine.Step(cmd)
	result.AddEvents(res.Events)
	return res
}

// commandFor builds the engine command a step names.
func commandFor(step Step) (engine.Command, error) {
	switch step.Do {
	case DoStart:
		return engine.Start(), nil
	case DoPause:
		return engine.Pause(), nil
	case DoReset:
		return engine.Reset(), nil
	case DoSwitch:
		return engine.SwitchPhase(session.Phase(step.Phase)), nil
	case DoQuickStart:
		return engine.QuickStart(), nil
	case DoTick:
		return engine.Tick(), nil
	case DoSelectSound:
		return engine.SelectSound(step.Sound), nil
	case DoToggleSound:
		return engine.ToggleSound(step.Sound), nil
	case DoStopSound:
		return engine.StopSound(), nil
	case DoFocus:
		if step.Enabled == nil {
			return engine.Command{}, fmt.Errorf("focus: enabled is required")
		}
		return engine.SetMotion(*step.Enabled), nil
	case DoToggleFocus:
		return engine.ToggleMotion(), nil
	case DoMotion:
		if step.Sample == nil {
			return engine.Command{}, fmt.Errorf("motion: sample is required")
		}
		return engine.MotionSample(*step.Sample), nil
	case DoSettings:
		var p settings.Partial
		for k, v := range step.Set {
			if err := p.Set(k, v); err != nil {
				return engine.Command{}, err
			}
		}
		return engine.UpdateSettings(p), nil
	case DoSyncFailure:
		msg := step.Message
		if msg == "" {
			msg = "sync failed"
		}
		return engine.ReportSyncFailure(errors.New(msg)), nil
	default:
		return engine.Command{}, fmt.Errorf("unknown command %q", step.Do)
	}
}
