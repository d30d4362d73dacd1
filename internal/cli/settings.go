package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/pomoflo/internal/reconcile"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/settings"
)

// SettingsResult is the JSON payload of the settings command.
type SettingsResult struct {
	User     string            `json:"user"`
	Settings settings.Settings `json:"settings"`
	Created  bool              `json:"created"`
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings key=value...",
		Short: "Change a user's timer settings",
		Long: `Change timer settings in the user's remote document. Values are
whole minutes (interval is a pomodoro count) and are clamped to the allowed
ranges before they are written. Running sessions pick the change up.

Keys: pomodoro, short, long, interval.

Example:
  pomoflo settings --user alice pomodoro=50 short=10
  pomoflo settings --user alice interval=3 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettings(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runSettings(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	partial, err := parseSettings(args)
	if err != nil {
		return f.Fail(ExitCommandError, CodeInvalidArgs, "invalid settings", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return f.Fail(ExitCommandError, CodeConfig, "failed to load config", err)
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return f.Fail(ExitCommandError, CodeStore, "failed to open store", err)
	}
	defer closeStore()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec := reconcile.New(st, cfg.UserID, reconcile.WithDefaults(reconcile.DefaultDocument(cfg.Settings())))
	created, err := rec.EnsureDocument(ctx, nil)
	if err != nil {
		return f.Fail(ExitFailure, CodeStore, "failed to prepare document", err)
	}

	doc, err := st.Get(ctx, cfg.UserID)
	if err != nil {
		return f.Fail(ExitFailure, CodeStore, "failed to read document", err)
	}
	current, _ := doc.Map(remote.FieldSettings)
	next := settings.FromFields(current, cfg.Settings()).Apply(partial)

	if err := st.Update(ctx, cfg.UserID, remote.Document{remote.FieldSettings: next.Fields()}); err != nil {
		return f.Fail(ExitFailure, CodeStore, "failed to write settings", err)
	}
	f.VerboseLog("settings written for %s", cfg.UserID)

	if opts.Format == "json" {
		return f.Success(SettingsResult{User: cfg.UserID, Settings: next, Created: created})
	}
	return f.Success(fmt.Sprintf("Settings saved for %s: %s", cfg.UserID, next))
}
