package motion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Source delivers accelerometer samples. Subscribe starts delivery and
// returns a func that stops it; after that func returns, onSample is not
// called again.
type Source interface {
	Subscribe(ctx context.Context, onSample func(Sample)) (func(), error)
}

// LineSource reads one JSON sample per line, {"x":0.1,"y":0.2,"z":-9.7},
// from a file, FIFO or character device. Malformed lines are logged and
// skipped. Delivery ends at end of input, when ctx ends or on unsubscribe.
type LineSource struct {
	Path string

	open func(path string) (io.ReadCloser, error)
}

// NewLineSource returns a source reading path.
func NewLineSource(path string) *LineSource {
	return &LineSource{Path: path}
}

// NewReaderSource returns a source reading r. Subscribe may be called once.
func NewReaderSource(r io.ReadCloser) *LineSource {
	return &LineSource{
		Path: "reader",
		open: func(string) (io.ReadCloser, error) { return r, nil },
	}
}

// Subscribe opens the input and scans it on a new goroutine.
func (s *LineSource) Subscribe(ctx context.Context, onSample func(Sample)) (func(), error) {
	open := s.open
	if open == nil {
		open = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	}
	rc, err := open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open motion source %s: %w", s.Path, err)
	}

	var (
		mu      sync.Mutex
		stopped bool
		once    sync.Once
		done    = make(chan struct{})
	)
	deliver := func(sample Sample) bool {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return false
		}
		onSample(sample)
		return true
	}
	stop := func() {
		once.Do(func() {
			mu.Lock()
			stopped = true
			mu.Unlock()
			close(done)
			// unblocks a pending read on pipes and devices
			if err := rc.Close(); err != nil {
				slog.Debug("close motion source", "path", s.Path, "error", err)
			}
		})
	}

	go func() {
		defer stop()
		scanner := bufio.NewScanner(rc)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			sample, err := decodeLine(line)
			if err != nil {
				slog.Warn("skipping motion sample", "path", s.Path, "error", err)
				continue
			}
			if !deliver(sample) {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.Debug("motion source ended", "path", s.Path, "error", err)
		}
	}()

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	return stop, nil
}

func decodeLine(line []byte) (Sample, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	return DecodeSample(m), nil
}
