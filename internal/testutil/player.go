package testutil

import (
	"errors"
	"sync"

	"github.com/roach88/pomoflo/internal/sound"
)

// ErrPlaybackFailed is returned by RecordingPlayer for resources listed in
// FailFor.
var ErrPlaybackFailed = errors.New("playback failed")

// RecordingPlayer is a sound.Player that records every play and stop call
// and tracks how many handles are open at once.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type RecordingPlayer struct {
	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
	failFor   map[string]bool
}

// NewRecordingPlayer creates a player. Resources in failFor fail to play.
func NewRecordingPlayer(failFor ...string) *RecordingPlayer {
	p := &RecordingPlayer{failFor: make(map[string]bool)}
	for _, r := range failFor {
		p.failFor[r] = true
	}
	return p
}

// Play opens a recorded handle for resource.
func (p *RecordingPlayer) Play(resource string) (sound.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failFor[resource] {
		p.calls = append(p.calls, "fail:"+resource)
		return nil, ErrPlaybackFailed
	}
	p.calls = append(p.calls, "play:"+resource)
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	return &recordedHandle{player: p, resource: resource}, nil
}

// Calls returns the call log, e.g. ["play:white", "stop:white", "play:rain"].
func (p *RecordingPlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.calls))
	copy(out, p.calls)
	return out
}

// Active is the number of handles currently open.
func (p *RecordingPlayer) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// MaxActive is the highest number of handles ever open at once.
func (p *RecordingPlayer) MaxActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

type recordedHandle struct {
	player   *RecordingPlayer
	resource string
	stopped  bool
}

func (h *recordedHandle) Stop() error {
	h.player.mu.Lock()
	defer h.player.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	h.player.active--
	h.player.calls = append(h.player.calls, "stop:"+h.resource)
	return nil
}
