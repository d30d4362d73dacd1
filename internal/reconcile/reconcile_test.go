package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/progress"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
	"github.com/roach88/pomoflo/internal/testutil"
)

const user = "user-1"

// countingStore counts writes on top of a MemoryStore.
type countingStore struct {
	*remote.MemoryStore
	mu      sync.Mutex
	updates []remote.Document
	sets    int
}

func (s *countingStore) Update(ctx context.Context, userID string, fields remote.Document) error {
	s.mu.Lock()
	s.updates = append(s.updates, fields.Clone())
	s.mu.Unlock()
	return s.MemoryStore.Update(ctx, userID, fields)
}

func (s *countingStore) Set(ctx context.Context, userID string, fields remote.Document, merge bool) error {
	s.mu.Lock()
	s.sets++
	s.mu.Unlock()
	return s.MemoryStore.Set(ctx, userID, fields, merge)
}

func (s *countingStore) Updates() []remote.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]remote.Document(nil), s.updates...)
}

// recordingTarget records enqueued snapshots.
type recordingTarget struct {
	mu    sync.Mutex
	shots []engine.RemoteState
}

func (t *recordingTarget) Enqueue(cmd engine.Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cmd.Kind == engine.CmdApplySnapshot && cmd.Remote != nil {
		t.shots = append(t.shots, *cmd.Remote)
	}
	return true
}

func (t *recordingTarget) Snapshots() []engine.RemoteState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]engine.RemoteState(nil), t.shots...)
}

func runReconciler(t *testing.T, r *Reconciler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func flush(t *testing.T, r *Reconciler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Flush(ctx))
}

func batch(v engine.View, events ...engine.Event) engine.Batch {
	return engine.Batch{Events: events, View: v}
}

func localEvent(typ engine.EventType) engine.Event {
	return engine.Event{Type: typ, Origin: engine.OriginLocal}
}

func TestReconciler_CreatesMissingDocumentWithDefaults(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	r := New(store, user, WithBackoff(time.Millisecond, time.Millisecond))
	runReconciler(t, r)

	v := engine.View{Points: 3}
	r.Observe(batch(v, localEvent(engine.EventPointsAwarded)))
	flush(t, r)

	doc, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	points, _ := doc.Int(remote.FieldPoints)
	assert.Equal(t, int64(3), points)
	m, ok := doc.Map(remote.FieldSettings)
	require.True(t, ok, "defaults merged under the first write")
	assert.Equal(t, settings.Default(), settings.FromFields(m, settings.Settings{}))
	assert.Equal(t, 1, store.sets)
}

func TestReconciler_UpdatesExistingDocument(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	require.NoError(t, store.MemoryStore.Set(context.Background(), user, remote.Document{"points": int64(1), "extra": "kept"}, false))
	r := New(store, user)
	runReconciler(t, r)

	v := engine.View{Sound: sound.Selection{SelectedID: "rain", Playing: true}}
	r.Observe(batch(v, localEvent(engine.EventSoundSelected)))
	flush(t, r)

	doc, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, remote.Document{"points": int64(1), "extra": "kept", remote.FieldSelectedSound: "rain"}, doc)
	assert.Equal(t, 0, store.sets)
}

func TestReconciler_CoalescesQueuedFields(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	require.NoError(t, store.MemoryStore.Set(context.Background(), user, DefaultDocument(settings.Default()), false))
	r := New(store, user)

	r.Observe(batch(engine.View{Points: 1}, localEvent(engine.EventPointsAwarded)))
	r.Observe(batch(engine.View{Points: 2}, localEvent(engine.EventPointsAwarded)))
	r.Observe(batch(engine.View{SuperFocus: true}, localEvent(engine.EventMotionChanged)))
	runReconciler(t, r)
	flush(t, r)

	updates := store.Updates()
	require.Len(t, updates, 1)
	assert.Equal(t, remote.Document{remote.FieldPoints: int64(2), remote.FieldSuperFocusMode: true}, updates[0])
}

func TestReconciler_IgnoresRemoteOriginAndUnmirroredEvents(t *testing.T) {
	store := &countingStore{MemoryStore: remote.NewMemoryStore()}
	r := New(store, user)

	r.Observe(batch(engine.View{Points: 9}, engine.Event{Type: engine.EventPointsAwarded, Origin: engine.OriginRemote}))
	r.Observe(batch(engine.View{}, localEvent(engine.EventStarted), localEvent(engine.EventSoundStopped), localEvent(engine.EventSyncFailed)))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.pending)
}

func TestReconciler_RetriesAndReportsFailures(t *testing.T) {
	store := remote.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), user, remote.Document{}, false))
	store.FailNextWrite(errors.New("network down"))

	var mu sync.Mutex
	var failures []error
	r := New(store, user,
		WithBackoff(time.Millisecond, 5*time.Millisecond),
		WithFailureHandler(func(err error) {
			mu.Lock()
			failures = append(failures, err)
			mu.Unlock()
		}),
	)
	runReconciler(t, r)

	r.Observe(batch(engine.View{Points: 4}, localEvent(engine.EventPointsAwarded)))
	flush(t, r)

	doc, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	points, _ := doc.Int(remote.FieldPoints)
	assert.Equal(t, int64(4), points)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "network down")
}

func TestReconciler_CloseWritesQueuedThenStops(t *testing.T) {
	store := remote.NewMemoryStore()
	r := New(store, user)
	r.Observe(batch(engine.View{Points: 7}, localEvent(engine.EventPointsAwarded)))
	r.Close()

	assert.False(t, r.Push(remote.Document{remote.FieldPoints: int64(8)}))
	require.NoError(t, r.Run(context.Background()))

	doc, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	points, _ := doc.Int(remote.FieldPoints)
	assert.Equal(t, int64(7), points)
}

func TestReconciler_EnsureDocument(t *testing.T) {
	store := remote.NewMemoryStore()
	r := New(store, user)

	created, err := r.EnsureDocument(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = r.EnsureDocument(context.Background(), remote.Document{"points": int64(100)})
	require.NoError(t, err)
	assert.False(t, created, "existing document is left alone")

	doc, _ := store.Get(context.Background(), user)
	assert.Equal(t, DefaultDocument(settings.Default()), doc)
}

func TestReconciler_AttachDeliversInitialDocument(t *testing.T) {
	store := remote.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), user, remote.Document{remote.FieldSelectedSound: "rain"}, false))
	r := New(store, user)
	target := &recordingTarget{}

	release, err := r.Attach(context.Background(), target)
	require.NoError(t, err)
	defer release()

	shots := target.Snapshots()
	require.Len(t, shots, 1)
	require.NotNil(t, shots[0].SelectedSound)
	assert.Equal(t, "rain", *shots[0].SelectedSound)
	assert.Nil(t, shots[0].Points)
}

func TestReconciler_SuppressesOwnEchoes(t *testing.T) {
	store := remote.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), user, remote.Document{remote.FieldPoints: int64(0)}, false))
	r := New(store, user)
	target := &recordingTarget{}
	release, err := r.Attach(context.Background(), target)
	require.NoError(t, err)
	defer release()
	runReconciler(t, r)

	r.Observe(batch(engine.View{Points: 1}, localEvent(engine.EventPointsAwarded)))
	flush(t, r)
	r.Observe(batch(engine.View{Points: 2}, localEvent(engine.EventPointsAwarded)))
	flush(t, r)

	// Initial delivery only; both echoes are suppressed.
	assert.Len(t, target.Snapshots(), 1)

	require.NoError(t, store.Update(context.Background(), user, remote.Document{remote.FieldPoints: int64(42)}))
	shots := target.Snapshots()
	require.Len(t, shots, 2)
	require.NotNil(t, shots[1].Points)
	assert.Equal(t, int64(42), *shots[1].Points)
}

func TestReconciler_PendingLocalValueWins(t *testing.T) {
	store := remote.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), user, remote.Document{}, false))
	r := New(store, user)
	target := &recordingTarget{}
	release, err := r.Attach(context.Background(), target)
	require.NoError(t, err)
	defer release()

	// Queued but not written yet: Run is not started.
	r.Observe(batch(engine.View{Points: 5}, localEvent(engine.EventPointsAwarded)))
	require.NoError(t, store.Update(context.Background(), user, remote.Document{remote.FieldPoints: int64(3), remote.FieldSuperFocusMode: true}))

	shots := target.Snapshots()
	require.NotEmpty(t, shots)
	last := shots[len(shots)-1]
	assert.Nil(t, last.Points)
	require.NotNil(t, last.SuperFocus)
	assert.True(t, *last.SuperFocus)
}

func TestDecode(t *testing.T) {
	doc := remote.Document{
		remote.FieldSettings:           map[string]any{"pomodoroDuration": int64(200), "longBreakInterval": int64(2)},
		remote.FieldPoints:             int64(12),
		remote.FieldCompletedPomodoros: int64(3),
		remote.FieldTotalFocusSeconds:  int64(4500),
		remote.FieldSelectedSound:      "none",
		remote.FieldSuperFocusMode:     true,
		remote.FieldDailyProgress: []any{
			map[string]any{"date": "2026-03-02", "focusSeconds": int64(600), "pomodoros": int64(1)},
		},
	}

	r := Decode(doc)

	require.NotNil(t, r.Settings)
	assert.Equal(t, settings.Settings{PomodoroDuration: 90, ShortBreakDuration: 5, LongBreakDuration: 15, LongBreakInterval: 2}, *r.Settings)
	assert.Equal(t, int64(12), *r.Points)
	assert.Equal(t, int64(3), *r.CompletedPomodoros)
	assert.Equal(t, int64(4500), *r.TotalFocusSeconds)
	assert.Equal(t, "", *r.SelectedSound)
	assert.True(t, *r.SuperFocus)
	assert.True(t, r.HasProgress)
	assert.Equal(t, []progress.Day{{Date: "2026-03-02", FocusSeconds: 600, Pomodoros: 1}}, r.DailyProgress)
}

func TestDecode_MissingAndMistypedFieldsStayNil(t *testing.T) {
	r := Decode(remote.Document{
		remote.FieldPoints:         "lots",
		remote.FieldSuperFocusMode: "yes",
	})

	assert.True(t, r.IsZero())
}

func TestFieldsFor(t *testing.T) {
	v := engine.View{
		Settings:           settings.Default(),
		Points:             2,
		CompletedPomodoros: 1,
		TotalFocusSeconds:  1500,
		Progress:           []progress.Day{{Date: "2026-03-02", FocusSeconds: 1500, Pomodoros: 1}},
	}
	day := []any{map[string]any{"date": "2026-03-02", "focusSeconds": int64(1500), "pomodoros": int64(1)}}

	tests := []struct {
		typ  engine.EventType
		want remote.Document
	}{
		{engine.EventSettingsChanged, remote.Document{remote.FieldSettings: settings.Default().Fields()}},
		{engine.EventPointsAwarded, remote.Document{remote.FieldPoints: int64(2)}},
		{engine.EventFocusAdded, remote.Document{remote.FieldTotalFocusSeconds: int64(1500), remote.FieldDailyProgress: day}},
		{engine.EventPomodoroCompleted, remote.Document{
			remote.FieldCompletedPomodoros: int64(1),
			remote.FieldTotalFocusSeconds:  int64(1500),
			remote.FieldDailyProgress:      day,
		}},
		{engine.EventSoundSelected, remote.Document{remote.FieldSelectedSound: ""}},
		{engine.EventMotionChanged, remote.Document{remote.FieldSuperFocusMode: false}},
		{engine.EventPhaseChanged, nil},
		{engine.EventSoundStopped, nil},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, FieldsFor(engine.Event{Type: tt.typ}, v))
		})
	}
}

// device wires an engine to a shared store the way the run command does.
type device struct {
	engine *engine.Engine
	rec    *Reconciler
	player *testutil.RecordingPlayer
}

func newDevice(t *testing.T, store remote.Store, clock *testutil.FakeClock, name string) *device {
	t.Helper()
	rec := New(store, user)
	player := testutil.NewRecordingPlayer()
	e := engine.New(player,
		engine.WithClock(clock),
		engine.WithIDs(testutil.NewFixedIDs(name)),
		engine.WithTickInterval(time.Hour),
		engine.WithListener(rec.Observe),
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = e.Run(ctx) }()
	go func() { defer wg.Done(); _ = rec.Run(ctx) }()

	release, err := rec.Attach(ctx, e)
	require.NoError(t, err)
	t.Cleanup(func() {
		release()
		cancel()
		wg.Wait()
	})
	return &device{engine: e, rec: rec, player: player}
}

func TestTwoDevices_LastWriterWins(t *testing.T) {
	store := remote.NewMemoryStore()
	clock := testutil.NewFakeClock(time.Time{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probe := New(store, user)
	_, err := probe.EnsureDocument(ctx, nil)
	require.NoError(t, err)

	a := newDevice(t, store, clock, "a")
	b := newDevice(t, store, clock, "b")

	_, err = b.engine.Do(ctx, engine.SelectSound("white"))
	require.NoError(t, err)
	require.NoError(t, b.rec.Flush(ctx))

	_, err = a.engine.Do(ctx, engine.SelectSound("rain"))
	require.NoError(t, err)
	seven := 7
	_, err = a.engine.UpdateSettings(ctx, settings.Partial{ShortBreakDuration: &seven})
	require.NoError(t, err)
	require.NoError(t, a.rec.Flush(ctx))

	require.Eventually(t, func() bool {
		v := b.engine.Snapshot()
		return v.Sound.SelectedID == "rain" && v.Settings.ShortBreakDuration == 7
	}, 5*time.Second, 5*time.Millisecond)

	v := b.engine.Snapshot()
	assert.True(t, v.Sound.Playing, "b was playing, so playback switched")
	assert.Equal(t, 1, b.player.MaxActive())
	assert.Equal(t, session.PhasePomodoro, v.Phase)

	doc, err := store.Get(ctx, user)
	require.NoError(t, err)
	id, _ := doc.String(remote.FieldSelectedSound)
	assert.Equal(t, "rain", id)
}

func TestReconciler_DrainWritesSynchronously(t *testing.T) {
	store := remote.NewMemoryStore()
	r := New(store, user)
	r.Observe(batch(engine.View{SuperFocus: true}, localEvent(engine.EventMotionChanged)))

	require.NoError(t, r.Drain(context.Background()))

	doc, err := store.Get(context.Background(), user)
	require.NoError(t, err)
	on, _ := doc.Bool(remote.FieldSuperFocusMode)
	assert.True(t, on)

	store.FailNextWrite(errors.New("offline"))
	r.Observe(batch(engine.View{Points: 1}, localEvent(engine.EventPointsAwarded)))
	assert.Error(t, r.Drain(context.Background()))
	require.NoError(t, r.Drain(context.Background()), "failed fields stay queued")

	doc, err = store.Get(context.Background(), user)
	require.NoError(t, err)
	points, _ := doc.Int(remote.FieldPoints)
	assert.Equal(t, int64(1), points)
}
