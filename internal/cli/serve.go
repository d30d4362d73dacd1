package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/roach88/pomoflo/internal/server"
	"github.com/roach88/pomoflo/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve user documents over HTTP",
		Long: `Serve the per-user documents from a SQLite database so that several
devices (each running "pomoflo run" with store.kind=http) share one profile.

Example:
  pomoflo serve --addr :8080 --db ./pomoflo.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default serve.addr from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default serve.db_path from config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	addr := firstNonEmpty(opts.Addr, cfg.Serve.Addr)
	dbPath := firstNonEmpty(opts.Database, cfg.Serve.DBPath)

	if !opts.Verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("opening database", "path", dbPath)
	st, err := store.Open(dbPath, store.WithPollInterval(cfg.Store.PollInterval))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("server starting", "addr", addr, "db", dbPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving documents on %s. Press Ctrl-C to stop.\n", addr)

	if err := server.New(st).Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
