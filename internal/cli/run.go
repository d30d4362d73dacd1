package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/reconcile"
)

// flushTimeout bounds how long shutdown waits for queued remote writes.
const flushTimeout = 5 * time.Second

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// IDs overrides the session id generator (for testing). If nil,
	// defaults to UUIDv7Generator.
	IDs engine.IDGenerator

	// Motion overrides the configured motion sample source (for testing).
	Motion motion.Source
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an interactive focus session",
		Long: `Start a focus session for one user.

The session opens the configured document store, creates the user's
document if needed, subscribes to changes made on other devices and then
reads commands from standard input, one per line. Type "help" for the list.

Example:
  pomoflo run --user alice
  pomoflo run --config ./pomoflo.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(opts, cmd)
		},
	}

	return cmd
}

func runSession(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer closeStore()

	player, err := newPlayer(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create player", err)
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	out := NewNotifier(cmd.OutOrStdout())

	var eng *engine.Engine
	rec := reconcile.New(st, cfg.UserID,
		reconcile.WithDefaults(reconcile.DefaultDocument(cfg.Settings())),
		reconcile.WithFailureHandler(func(err error) {
			eng.Enqueue(engine.ReportSyncFailure(err))
		}),
	)

	engineOpts := []engine.Option{
		engine.WithSettings(cfg.Settings()),
		engine.WithCatalog(cfg.Catalog()),
		engine.WithMotion(cfg.MotionOptions()),
		engine.WithTickInterval(cfg.Timer.TickInterval),
		engine.WithListener(rec.Observe),
		engine.WithListener(out.Observe),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDs(opts.IDs))
	}
	eng = engine.New(player, engineOpts...)

	if _, err := rec.EnsureDocument(ctx, nil); err != nil {
		return WrapExitError(ExitCommandError, "failed to prepare remote document", err)
	}

	// The reconciler outlives ctx so queued writes can still be flushed
	// after a signal.
	recCtx, recCancel := context.WithCancel(context.Background())
	defer recCancel()
	recDone := make(chan error, 1)
	go func() { recDone <- rec.Run(recCtx) }()

	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(ctx) }()

	release, err := rec.Attach(ctx, eng)
	if err != nil {
		eng.Stop()
		<-engineDone
		rec.Close()
		recCancel()
		<-recDone
		return WrapExitError(ExitCommandError, "failed to subscribe to remote document", err)
	}

	releaseMotion := func() {}
	source := opts.Motion
	if source == nil {
		source = cfg.MotionSource()
	}
	if source != nil {
		releaseMotion, err = source.Subscribe(ctx, func(s motion.Sample) {
			eng.Enqueue(engine.MotionSample(s))
		})
		if err != nil {
			release()
			eng.Stop()
			<-engineDone
			rec.Close()
			recCancel()
			<-recDone
			return WrapExitError(ExitCommandError, "failed to open motion source", err)
		}
		slog.Debug("motion source attached", "source", cfg.Motion.Source)
	}

	slog.Info("session started", "user", cfg.UserID, "session", eng.SessionID())
	out.Println(fmt.Sprintf("Session started for %s. Type \"help\" for commands.", cfg.UserID))

	readErr := readCommands(ctx, cmd.InOrStdin(), eng, out)

	// Shutdown order: motion input, remote subscription, engine (ticker
	// and sound), then the write queue.
	releaseMotion()
	release()
	eng.Stop()
	engineErr := <-engineDone

	rec.Close()
	select {
	case err := <-recDone:
		if err != nil {
			slog.Warn("reconciler stopped with error", "error", err)
		}
	case <-time.After(flushTimeout):
		slog.Warn("timed out flushing remote writes", "user", cfg.UserID)
		recCancel()
		<-recDone
	}

	if engineErr != nil && !errors.Is(engineErr, context.Canceled) {
		return WrapExitError(ExitFailure, "engine error", engineErr)
	}
	if readErr != nil {
		return WrapExitError(ExitFailure, "failed to read input", readErr)
	}

	slog.Info("session stopped gracefully", "user", cfg.UserID)
	return nil
}

// readCommands applies input lines until quit, end of input or ctx ends.
func readCommands(ctx context.Context, in io.Reader, eng *engine.Engine, out *Notifier) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return <-scanErr
			}
			action, err := parseLine(line)
			if err != nil {
				out.Println("Error: " + err.Error())
				continue
			}
			switch action.kind {
			case lineEmpty:
			case lineHelp:
				out.Println(lineHelpText)
			case lineStatus:
				out.Println(formatStatus(eng.Snapshot()))
			case lineQuit:
				return nil
			case lineCommand:
				if _, err := eng.Do(ctx, action.cmd); err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					out.Println("Error: " + err.Error())
				}
			}
		}
	}
}
