package sound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ExecPlayer plays resources by launching an external command such as
// "mpv --loop=inf --no-video {}". The literal {} is replaced with the
// resource; when absent the resource is appended. Each Play starts one
// process and Stop kills it.
type ExecPlayer struct {
	argv []string
}

// NewExecPlayer parses a command line into an ExecPlayer.
func NewExecPlayer(command string) (*ExecPlayer, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, errors.New("empty player command")
	}
	return &ExecPlayer{argv: argv}, nil
}

// Play starts the command for resource.
func (p *ExecPlayer) Play(resource string) (Handle, error) {
	args := make([]string, 0, len(p.argv))
	substituted := false
	for _, a := range p.argv[1:] {
		if strings.Contains(a, "{}") {
			a = strings.ReplaceAll(a, "{}", resource)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, resource)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.argv[0], args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", p.argv[0], err)
	}

	h := &execHandle{id: uuid.NewString(), resource: resource, cmd: cmd, cancel: cancel, done: make(chan struct{})}
	go h.wait()
	slog.Debug("sound started", "handle", h.id, "resource", resource, "pid", cmd.Process.Pid)
	return h, nil
}

type execHandle struct {
	id       string
	resource string
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	close(h.done)
	if err != nil {
		slog.Debug("sound process exited", "handle", h.id, "error", err)
	}
}

func (h *execHandle) Stop() error {
	h.once.Do(func() {
		h.cancel()
		<-h.done
		slog.Debug("sound stopped", "handle", h.id, "resource", h.resource)
	})
	return nil
}

// LogPlayer is used when no player command is configured. It only logs, so
// selection and sync behave the same on machines without audio.
type LogPlayer struct{}

// Play logs the resource and returns a handle that logs on Stop.
func (LogPlayer) Play(resource string) (Handle, error) {
	id := uuid.NewString()
	slog.Info("sound playing", "handle", id, "resource", resource)
	return logHandle{id: id, resource: resource}, nil
}

type logHandle struct {
	id       string
	resource string
}

func (h logHandle) Stop() error {
	slog.Info("sound stopped", "handle", h.id, "resource", h.resource)
	return nil
}
