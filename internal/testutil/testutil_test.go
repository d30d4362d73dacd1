package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClock_DefaultsToEpoch(t *testing.T) {
	c := NewFakeClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
}

func TestFakeClock_Advance(t *testing.T) {
	c := NewFakeClock(Epoch)

	got := c.Advance(90 * time.Second)

	assert.Equal(t, Epoch.Add(90*time.Second), got)
	assert.Equal(t, got, c.Now())
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	c := NewFakeClock(Epoch)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Advance(time.Second)
		}()
	}
	wg.Wait()
	assert.Equal(t, Epoch.Add(50*time.Second), c.Now())
}

func TestFixedIDs(t *testing.T) {
	g := NewFixedIDs("session")
	assert.Equal(t, "session-1", g.New())
	assert.Equal(t, "session-2", g.New())
	assert.Equal(t, "test-1", NewFixedIDs("").New())
}

func TestRecordingPlayer_TracksHandles(t *testing.T) {
	p := NewRecordingPlayer("broken.mp3")

	h1, err := p.Play("a.mp3")
	require.NoError(t, err)
	h2, err := p.Play("b.mp3")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Active())

	require.NoError(t, h1.Stop())
	require.NoError(t, h1.Stop())
	require.NoError(t, h2.Stop())

	_, err = p.Play("broken.mp3")
	assert.ErrorIs(t, err, ErrPlaybackFailed)

	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 2, p.MaxActive())
	assert.Equal(t, []string{"play:a.mp3", "play:b.mp3", "stop:a.mp3", "stop:b.mp3", "fail:broken.mp3"}, p.Calls())
}
