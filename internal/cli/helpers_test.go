package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pomoflo/internal/motion"
)

// writeConfig writes a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pomoflo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// sqliteConfig returns a config file pointing at a fresh SQLite database.
func sqliteConfig(t *testing.T) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "pomoflo.db")
	return writeConfig(t, "store:\n  kind: sqlite\n  path: "+db+"\n  poll_interval: 20ms\n")
}

// execute runs the root command with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}

	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(strings.NewReader(stdin))

	err := cmd.Execute()
	return out.String(), err
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reading test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// motionFeed is a motion.Source the test pushes samples through.
type motionFeed struct {
	mu         sync.Mutex
	onSample   func(motion.Sample)
	subscribed chan struct{}
	subs       int
	releases   int
}

func newMotionFeed() *motionFeed {
	return &motionFeed{subscribed: make(chan struct{})}
}

func (f *motionFeed) Subscribe(_ context.Context, onSample func(motion.Sample)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSample = onSample
	f.subs++
	if f.subs == 1 {
		close(f.subscribed)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.onSample = nil
			f.releases++
		})
	}, nil
}

func (f *motionFeed) emit(s motion.Sample) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSample == nil {
		return false
	}
	f.onSample(s)
	return true
}

func (f *motionFeed) state() (active bool, releases int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onSample != nil, f.releases
}

func (f *motionFeed) waitSubscribed(t *testing.T) {
	t.Helper()
	select {
	case <-f.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("motion source was never subscribed")
	}
}

// startSession runs a session with source on a goroutine and returns its
// result channel.
func startSession(ctx context.Context, t *testing.T, configPath string, source motion.Source, in io.Reader, out io.Writer) <-chan error {
	t.Helper()
	opts := &RunOptions{
		RootOptions: &RootOptions{Format: "text", ConfigPath: configPath},
		Motion:      source,
	}
	cmd := &cobra.Command{}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runSession(opts, cmd) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("session did not stop")
		return nil
	}
}
