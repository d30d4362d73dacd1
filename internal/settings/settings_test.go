package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Settings
		want Settings
	}{
		{
			name: "defaults unchanged",
			in:   Default(),
			want: Default(),
		},
		{
			name: "below minimum",
			in:   Settings{PomodoroDuration: 0, ShortBreakDuration: -3, LongBreakDuration: 1, LongBreakInterval: 0},
			want: Settings{PomodoroDuration: 5, ShortBreakDuration: 1, LongBreakDuration: 5, LongBreakInterval: 1},
		},
		{
			name: "above maximum",
			in:   Settings{PomodoroDuration: 500, ShortBreakDuration: 31, LongBreakDuration: 61, LongBreakInterval: 11},
			want: Settings{PomodoroDuration: 90, ShortBreakDuration: 30, LongBreakDuration: 60, LongBreakInterval: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Clamp())
		})
	}
}

func TestStore_UpdateClampsAndReportsChange(t *testing.T) {
	s := NewStore(Default())

	got, changed := s.Update(Partial{PomodoroDuration: intp(120)})
	assert.True(t, changed)
	assert.Equal(t, 90, got.PomodoroDuration)
	assert.Equal(t, got, s.Current())

	_, changed = s.Update(Partial{PomodoroDuration: intp(95)})
	assert.False(t, changed, "clamps to the same value")
}

func TestStore_NewStoreClamps(t *testing.T) {
	s := NewStore(Settings{LongBreakInterval: 0})
	assert.Equal(t, 1, s.Current().LongBreakInterval)
}

func TestFromFields(t *testing.T) {
	m := map[string]any{
		KeyPomodoro:   json.Number("50"),
		KeyShortBreak: float64(10),
		KeyInterval:   int64(0),
		KeyLongBreak:  "junk",
	}

	got := FromFields(m, Default())

	assert.Equal(t, Settings{
		PomodoroDuration:   50,
		ShortBreakDuration: 10,
		LongBreakDuration:  15,
		LongBreakInterval:  1,
	}, got)
}

func TestFieldsRoundTrip(t *testing.T) {
	s := Settings{PomodoroDuration: 30, ShortBreakDuration: 6, LongBreakDuration: 20, LongBreakInterval: 3}
	assert.Equal(t, s, FromFields(s.Fields(), Default()))
}

func TestPartial_Set(t *testing.T) {
	var p Partial
	require.NoError(t, p.Set("pomodoro", 40))
	require.NoError(t, p.Set(KeyShortBreak, 4))
	require.NoError(t, p.Set("long", 25))
	require.NoError(t, p.Set("interval", 2))
	assert.Error(t, p.Set("volume", 3))

	got := Default().Apply(p)
	assert.Equal(t, Settings{PomodoroDuration: 40, ShortBreakDuration: 4, LongBreakDuration: 25, LongBreakInterval: 2}, got)
	assert.False(t, p.IsZero())
	assert.True(t, Partial{}.IsZero())
}
