package reward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCrossings(t *testing.T) {
	tests := []struct {
		name          string
		before, after int64
		want          int64
	}{
		{"nothing", 0, 0, 0},
		{"below first boundary", 0, 299, 0},
		{"lands on boundary", 299, 300, 1},
		{"from boundary", 300, 301, 0},
		{"big jump", 10, 1510, 5},
		{"backwards", 900, 100, 0},
		{"negative start", -50, 300, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Crossings(tt.before, tt.after))
		})
	}
}

func TestLedger_PerSecondMatchesJump(t *testing.T) {
	perSecond := NewLedger(0)
	for s := int64(0); s < 3600; s++ {
		perSecond.Award(s, s+1)
	}

	jump := NewLedger(0)
	jump.Award(0, 3600)

	assert.Equal(t, int64(12), perSecond.Points())
	assert.Equal(t, perSecond.Points(), jump.Points())
}

func TestLedger_Set(t *testing.T) {
	l := NewLedger(-4)
	assert.Zero(t, l.Points())

	l.Set(9)
	assert.Equal(t, int64(9), l.Points())
	assert.Equal(t, int64(1), l.Award(250, 350))
	assert.Equal(t, int64(10), l.Points())
}
