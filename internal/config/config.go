// Package config loads pomoflo configuration.
//
// Sources are layered, later ones winning:
//
//  1. defaults set in code
//  2. the YAML file passed to Load (optional)
//  3. POMOFLO_* environment variables, including any read from a .env file
//
// The merged result is checked against the embedded CUE schema before it is
// returned, so callers never see an out-of-range threshold or an unknown
// store kind.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override, e.g. POMOFLO_STORE_KIND.
const EnvPrefix = "POMOFLO"

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreHTTP   = "http"
	StoreMemory = "memory"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the resolved configuration.
type Config struct {
	UserID string       `mapstructure:"user_id"`
	Store  StoreConfig  `mapstructure:"store"`
	Motion MotionConfig `mapstructure:"motion"`
	Timer  TimerConfig  `mapstructure:"timer"`
	// Sounds maps sound ids to playable resources. Entries from the file
	// are added to the defaults.
	Sounds map[string]string `mapstructure:"sounds"`
	Player PlayerConfig      `mapstructure:"player"`
	Serve  ServeConfig       `mapstructure:"serve"`
}

// StoreConfig selects the remote document store.
type StoreConfig struct {
	Kind         string        `mapstructure:"kind"`
	Path         string        `mapstructure:"path"`
	URL          string        `mapstructure:"url"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MotionConfig tunes Super Focus Mode.
type MotionConfig struct {
	FaceDownZ    float64       `mapstructure:"face_down_z"`
	FaceUpZ      float64       `mapstructure:"face_up_z"`
	MaxMagnitude float64       `mapstructure:"max_magnitude"`
	Throttle     time.Duration `mapstructure:"throttle"`
	Smoothing    int           `mapstructure:"smoothing"`
	// Source is a file, FIFO or device streaming JSON-lines samples.
	// Empty means samples only arrive as typed commands.
	Source string `mapstructure:"source"`
}

// TimerConfig holds the tick rate and the settings used for a brand new
// document.
type TimerConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	Pomodoro     int           `mapstructure:"pomodoro"`
	ShortBreak   int           `mapstructure:"short_break"`
	LongBreak    int           `mapstructure:"long_break"`
	Interval     int           `mapstructure:"interval"`
}

// PlayerConfig selects audio output. An empty command logs instead of
// playing.
type PlayerConfig struct {
	Command string `mapstructure:"command"`
}

// ServeConfig configures the document server.
type ServeConfig struct {
	Addr   string `mapstructure:"addr"`
	DBPath string `mapstructure:"db_path"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	s := settings.Default()
	th := motion.DefaultThresholds()
	return Config{
		UserID: "local",
		Store: StoreConfig{
			Kind:         StoreSQLite,
			Path:         "pomoflo.db",
			PollInterval: 2 * time.Second,
		},
		Motion: MotionConfig{
			FaceDownZ:    th.FaceDownZ,
			FaceUpZ:      th.FaceUpZ,
			MaxMagnitude: th.MaxMagnitude,
			Throttle:     time.Second,
		},
		Timer: TimerConfig{
			TickInterval: time.Second,
			Pomodoro:     s.PomodoroDuration,
			ShortBreak:   s.ShortBreakDuration,
			LongBreak:    s.LongBreakDuration,
			Interval:     s.LongBreakInterval,
		},
		Sounds: sound.DefaultCatalog(),
		Serve: ServeConfig{
			Addr:   ":8080",
			DBPath: "pomoflo.db",
		},
	}
}

// Load resolves the configuration. path may be empty, in which case only
// defaults and the environment apply. A .env file in the working directory
// is read if present.
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		slog.Debug("config file loaded", "path", path)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv reads environment variables from files (default ".env").
// Missing files are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		err := godotenv.Load(f)
		if err == nil {
			slog.Debug("env file loaded", "path", f)
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		return fmt.Errorf("load %s: %w", f, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("user_id", d.UserID)
	v.SetDefault("store.kind", d.Store.Kind)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("store.poll_interval", d.Store.PollInterval)
	v.SetDefault("motion.face_down_z", d.Motion.FaceDownZ)
	v.SetDefault("motion.face_up_z", d.Motion.FaceUpZ)
	v.SetDefault("motion.max_magnitude", d.Motion.MaxMagnitude)
	v.SetDefault("motion.throttle", d.Motion.Throttle)
	v.SetDefault("motion.smoothing", d.Motion.Smoothing)
	v.SetDefault("motion.source", d.Motion.Source)
	v.SetDefault("timer.tick_interval", d.Timer.TickInterval)
	v.SetDefault("timer.pomodoro", d.Timer.Pomodoro)
	v.SetDefault("timer.short_break", d.Timer.ShortBreak)
	v.SetDefault("timer.long_break", d.Timer.LongBreak)
	v.SetDefault("timer.interval", d.Timer.Interval)
	for id, res := range d.Sounds {
		v.SetDefault("sounds."+id, res)
	}
	v.SetDefault("player.command", d.Player.Command)
	v.SetDefault("serve.addr", d.Serve.Addr)
	v.SetDefault("serve.db_path", d.Serve.DBPath)
}

// ValidationError reports the first schema violation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Message)
}

// Unwrap makes errors.Is(err, ErrInvalidConfig) hold.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks c against the embedded CUE schema.
func Validate(c Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	value := def.Unify(ctx.Encode(c.schemaView()))
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// schemaView renders c with the field names and units the schema uses.
func (c Config) schemaView() map[string]any {
	sounds := make(map[string]any, len(c.Sounds))
	for id, res := range c.Sounds {
		sounds[id] = res
	}
	return map[string]any{
		"user_id": c.UserID,
		"store": map[string]any{
			"kind":             c.Store.Kind,
			"path":             c.Store.Path,
			"url":              c.Store.URL,
			"poll_interval_ms": c.Store.PollInterval.Milliseconds(),
		},
		"motion": map[string]any{
			"face_down_z":   c.Motion.FaceDownZ,
			"face_up_z":     c.Motion.FaceUpZ,
			"max_magnitude": c.Motion.MaxMagnitude,
			"throttle_ms":   c.Motion.Throttle.Milliseconds(),
			"smoothing":     c.Motion.Smoothing,
			"source":        c.Motion.Source,
		},
		"timer": map[string]any{
			"tick_interval_ms": c.Timer.TickInterval.Milliseconds(),
			"pomodoro":         c.Timer.Pomodoro,
			"short_break":      c.Timer.ShortBreak,
			"long_break":       c.Timer.LongBreak,
			"interval":         c.Timer.Interval,
		},
		"sounds": sounds,
		"player": map[string]any{"command": c.Player.Command},
		"serve": map[string]any{
			"addr":    c.Serve.Addr,
			"db_path": c.Serve.DBPath,
		},
	}
}

func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	msg, args := first.Msg()
	return &ValidationError{
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(msg, args...),
	}
}

// Settings are the timer settings a new document starts with (clamped).
func (c Config) Settings() settings.Settings {
	return settings.Settings{
		PomodoroDuration:   c.Timer.Pomodoro,
		ShortBreakDuration: c.Timer.ShortBreak,
		LongBreakDuration:  c.Timer.LongBreak,
		LongBreakInterval:  c.Timer.Interval,
	}.Clamp()
}

// MotionOptions converts the motion section.
func (c Config) MotionOptions() motion.Options {
	return motion.Options{
		Thresholds: motion.Thresholds{
			FaceDownZ:    c.Motion.FaceDownZ,
			FaceUpZ:      c.Motion.FaceUpZ,
			MaxMagnitude: c.Motion.MaxMagnitude,
		},
		Throttle:  c.Motion.Throttle,
		Smoothing: c.Motion.Smoothing,
	}
}

// MotionSource returns the configured sample source, or nil when none is
// set.
func (c Config) MotionSource() motion.Source {
	if c.Motion.Source == "" {
		return nil
	}
	return motion.NewLineSource(c.Motion.Source)
}

// Catalog returns the configured sounds.
func (c Config) Catalog() sound.Catalog {
	out := make(sound.Catalog, len(c.Sounds))
	for id, res := range c.Sounds {
		out[id] = res
	}
	return out
}
