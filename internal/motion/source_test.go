package motion

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan Sample, n int) []Sample {
	t.Helper()
	var out []Sample
	for len(out) < n {
		select {
		case s := <-ch:
			out = append(out, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("got %d samples, want %d", len(out), n)
		}
	}
	return out
}

func TestLineSource_DeliversSamplesSkippingBadLines(t *testing.T) {
	input := "{\"x\":0.5,\"y\":-1,\"z\":-9.7}\n\nnot json\n{\"z\":9.5}\n"
	src := NewReaderSource(io.NopCloser(strings.NewReader(input)))

	ch := make(chan Sample, 4)
	release, err := src.Subscribe(context.Background(), func(s Sample) { ch <- s })
	require.NoError(t, err)
	defer release()

	got := collect(t, ch, 2)
	assert.Equal(t, []Sample{{X: 0.5, Y: -1, Z: -9.7}, {Z: 9.5}}, got)
}

func TestLineSource_ReleaseStopsDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewReaderSource(pr)

	ch := make(chan Sample, 4)
	release, err := src.Subscribe(context.Background(), func(s Sample) { ch <- s })
	require.NoError(t, err)

	_, err = io.WriteString(pw, "{\"z\":-9.8}\n")
	require.NoError(t, err)
	collect(t, ch, 1)

	release()
	release()

	_, err = io.WriteString(pw, "{\"z\":9.8}\n")
	assert.ErrorIs(t, err, io.ErrClosedPipe, "release closes the input")
	assert.Empty(t, ch)
}

func TestLineSource_ContextCancelStopsDelivery(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewReaderSource(pr)

	ctx, cancel := context.WithCancel(context.Background())
	release, err := src.Subscribe(ctx, func(Sample) {})
	require.NoError(t, err)
	defer release()

	cancel()
	assert.Eventually(t, func() bool {
		_, err := io.WriteString(pw, "{\"z\":1}\n")
		return err != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestLineSource_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accel.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"x\":1,\"y\":2,\"z\":3}\n"), 0o644))

	ch := make(chan Sample, 1)
	release, err := NewLineSource(path).Subscribe(context.Background(), func(s Sample) { ch <- s })
	require.NoError(t, err)
	defer release()

	assert.Equal(t, []Sample{{X: 1, Y: 2, Z: 3}}, collect(t, ch, 1))
}

func TestLineSource_MissingPath(t *testing.T) {
	_, err := NewLineSource(filepath.Join(t.TempDir(), "missing")).Subscribe(context.Background(), func(Sample) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
