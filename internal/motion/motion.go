// Package motion turns accelerometer samples into timer commands.
//
// Each sample is classified on its own: face down (z below FaceDownZ),
// face up (z above FaceUpZ) and excessive motion (vector magnitude above
// MaxMagnitude). The Trigger turns classifications into at most one action
// per sample. A face-down sample starts an idle timer; face-up or excessive
// motion pauses a running one, throttled so one repositioning does not
// produce a burst of pauses.
package motion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/session"
)

// Sample is one acceleration-including-gravity reading in m/s².
type Sample struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Magnitude is the length of the acceleration vector.
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// DecodeSample reads a sample from a decoded map. A missing or malformed
// axis reads as zero.
func DecodeSample(m map[string]any) Sample {
	return Sample{X: axis(m["x"]), Y: axis(m["y"]), Z: axis(m["z"])}
}

// ParseSample reads a sample from three strings, as typed on the command
// line. Unparseable axes read as zero.
func ParseSample(fields []string) Sample {
	var vals [3]float64
	for i := 0; i < len(vals) && i < len(fields); i++ {
		vals[i] = axis(fields[i])
	}
	return Sample{X: vals[0], Y: vals[1], Z: vals[2]}
}

func axis(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		i, ok := remote.AsInt(v)
		if !ok {
			return 0
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Thresholds configures classification.
type Thresholds struct {
	FaceDownZ    float64
	FaceUpZ      float64
	MaxMagnitude float64
}

// DefaultThresholds returns -9, +9 and 18.
func DefaultThresholds() Thresholds {
	return Thresholds{FaceDownZ: -9, FaceUpZ: 9, MaxMagnitude: 18}
}

// Classification is the result of classifying a single sample.
type Classification struct {
	FaceDown        bool
	FaceUp          bool
	ExcessiveMotion bool
}

// Classify applies t to s.
func (t Thresholds) Classify(s Sample) Classification {
	return Classification{
		FaceDown:        s.Z < t.FaceDownZ,
		FaceUp:          s.Z > t.FaceUpZ,
		ExcessiveMotion: s.Magnitude() > t.MaxMagnitude,
	}
}

// Action is what the trigger asks the timer to do.
type Action int

const (
	None Action = iota
	Start
	Pause
)

func (a Action) String() string {
	switch a {
	case Start:
		return "start"
	case Pause:
		return "pause"
	default:
		return "none"
	}
}

// Reason explains a decision; it is reported with the motion_triggered
// event.
type Reason string

const (
	ReasonFaceDown        Reason = "face_down"
	ReasonFaceUp          Reason = "face_up"
	ReasonExcessiveMotion Reason = "excessive_motion"
)

// Decision is the trigger's verdict for one sample.
type Decision struct {
	Action Action
	Reason Reason
}

// Options configures a Trigger.
type Options struct {
	Thresholds Thresholds
	// Throttle is the minimum time between motion-triggered pauses.
	Throttle time.Duration
	// Smoothing is the moving-average window in samples; 0 or 1 disables it.
	Smoothing int
}

// DefaultOptions returns the default thresholds, a one second throttle and
// no smoothing.
func DefaultOptions() Options {
	return Options{Thresholds: DefaultThresholds(), Throttle: time.Second}
}

// Trigger is the Super Focus Mode automation. It is owned by the engine
// goroutine and is not safe for concurrent use.
type Trigger struct {
	opts      Options
	enabled   bool
	lastPause time.Time
	window    []Sample
}

// NewTrigger creates a disabled trigger.
func NewTrigger(opts Options) *Trigger {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	return &Trigger{opts: opts}
}

// Enabled reports whether samples are evaluated.
func (t *Trigger) Enabled() bool {
	return t.enabled
}

// SetEnabled turns the automation on or off and reports whether the value
// changed. Disabling clears the smoothing window and the throttle stamp.
func (t *Trigger) SetEnabled(on bool) bool {
	if t.enabled == on {
		return false
	}
	t.enabled = on
	if !on {
		t.window = t.window[:0]
		t.lastPause = time.Time{}
	}
	return true
}

// Evaluate classifies s against the current run state and returns the
// action to take at now. A Pause decision records now as the throttle
// stamp, so callers must apply every Pause they receive.
func (t *Trigger) Evaluate(s Sample, state session.RunState, now time.Time) Decision {
	if !t.enabled {
		return Decision{}
	}
	c := t.opts.Thresholds.Classify(t.smooth(s))

	switch {
	case c.FaceDown && state == session.Idle:
		return Decision{Action: Start, Reason: ReasonFaceDown}
	case (c.FaceUp || c.ExcessiveMotion) && state == session.Running:
		if !t.lastPause.IsZero() && now.Sub(t.lastPause) < t.opts.Throttle {
			return Decision{}
		}
		t.lastPause = now
		reason := ReasonFaceUp
		if c.ExcessiveMotion {
			reason = ReasonExcessiveMotion
		}
		return Decision{Action: Pause, Reason: reason}
	}
	return Decision{}
}

func (t *Trigger) smooth(s Sample) Sample {
	n := t.opts.Smoothing
	if n <= 1 {
		return s
	}
	t.window = append(t.window, s)
	if len(t.window) > n {
		t.window = t.window[len(t.window)-n:]
	}
	var sum Sample
	for _, w := range t.window {
		sum.X += w.X
		sum.Y += w.Y
		sum.Z += w.Z
	}
	k := float64(len(t.window))
	return Sample{X: sum.X / k, Y: sum.Y / k, Z: sum.Z / k}
}

func (s Sample) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", s.X, s.Y, s.Z)
}
