// Package sound arbitrates ambient sound playback.
//
// At most one audio handle is open at any moment. Switching sounds stops and
// releases the old handle before the new one is requested, so two streams
// never overlap. The selected id is part of synced state; playback itself is
// never resumed on load, only in response to an explicit Select.
package sound

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ErrUnknownSound is returned for ids missing from the catalog.
var ErrUnknownSound = errors.New("unknown sound")

// Handle is one open playback stream.
type Handle interface {
	Stop() error
}

// Player opens playback streams for catalog resources.
type Player interface {
	Play(resource string) (Handle, error)
}

// Catalog maps sound ids to playable resources (file paths or URLs).
type Catalog map[string]string

// DefaultCatalog is the built-in sound set.
func DefaultCatalog() Catalog {
	return Catalog{
		"cafe":   "sounds/cafe.mp3",
		"waves":  "sounds/waves.mp3",
		"white":  "sounds/white.mp3",
		"pencil": "sounds/pencil.mp3",
		"lofi":   "sounds/lofi.mp3",
		"rain":   "sounds/rain.mp3",
	}
}

// IDs returns the catalog ids in sorted order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Selection is the arbiter's observable state.
type Selection struct {
	SelectedID string `json:"selectedSoundId,omitempty"`
	Playing    bool   `json:"isPlaying"`
}

// IsNone reports whether id means "no sound". The mobile client wrote
// "none" for an empty selection.
func IsNone(id string) bool {
	return id == "" || id == "none"
}

// Arbiter owns the single active handle. It is not safe for concurrent
// use; the engine owns it from a single goroutine.
type Arbiter struct {
	player  Player
	catalog Catalog

	selected string
	active   Handle
	activeID string
}

// NewArbiter creates an arbiter over catalog. A nil catalog means
// DefaultCatalog.
func NewArbiter(player Player, catalog Catalog) *Arbiter {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Arbiter{player: player, catalog: catalog}
}

// Selection returns the current selection.
func (a *Arbiter) Selection() Selection {
	return Selection{SelectedID: a.selected, Playing: a.active != nil}
}

// Catalog returns the sound catalog.
func (a *Arbiter) Catalog() Catalog {
	return a.catalog
}

// Select plays id. Selecting the sound that is already playing is a no-op
// and reports changed=false. Otherwise the current handle is released first.
// When the new stream fails to open, the selection still moves to id, nothing
// is playing, and the error is returned.
func (a *Arbiter) Select(id string) (changed bool, err error) {
	if IsNone(id) {
		stopped, err := a.Stop()
		prev := a.selected
		a.selected = ""
		return stopped || prev != "", err
	}
	if a.active != nil && a.activeID == id {
		return false, nil
	}
	resource, ok := a.catalog[id]
	if !ok {
		return false, fmt.Errorf("select %q: %w", id, ErrUnknownSound)
	}

	if _, err := a.Stop(); err != nil {
		slog.Warn("releasing previous sound failed", "sound", a.activeID, "error", err)
	}
	a.selected = id

	if a.player == nil {
		return true, fmt.Errorf("play %q: no audio player configured", id)
	}
	h, err := a.player.Play(resource)
	if err != nil {
		return true, fmt.Errorf("play %q: %w", id, err)
	}
	a.active = h
	a.activeID = id
	return true, nil
}

// Stop halts playback and releases the handle. It is safe to call when
// nothing is playing. The selection is kept.
func (a *Arbiter) Stop() (stopped bool, err error) {
	if a.active == nil {
		return false, nil
	}
	h := a.active
	id := a.activeID
	a.active = nil
	a.activeID = ""
	if err := h.Stop(); err != nil {
		return true, fmt.Errorf("stop %q: %w", id, err)
	}
	return true, nil
}

// SetSelected records id as the selection without starting playback. A
// stream for a different id keeps playing.
func (a *Arbiter) SetSelected(id string) bool {
	if IsNone(id) {
		id = ""
	}
	if a.selected == id {
		return false
	}
	a.selected = id
	return true
}
