package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/pomoflo/internal/remote"
)

// NewDocCommand creates the doc command.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Print a user's remote document",
		Long: `Print the document the configured store holds for a user.

Example:
  pomoflo doc --user alice
  pomoflo doc --user alice --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoc(rootOpts, cmd)
		},
	}
	return cmd
}

func runDoc(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

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

	doc, err := st.Get(ctx, cfg.UserID)
	if errors.Is(err, remote.ErrNotFound) {
		return f.Fail(ExitCommandError, CodeNotFound, fmt.Sprintf("no document for user %q", cfg.UserID), nil)
	}
	if err != nil {
		return f.Fail(ExitFailure, CodeStore, "failed to read document", err)
	}

	f.VerboseLog("read document for %s (%d fields)", cfg.UserID, len(doc))
	if opts.Format == "json" {
		return f.Success(doc)
	}
	return f.Success(formatDocument(cfg.UserID, doc))
}

// formatDocument renders one field per line in key order. Nested values
// are shown as compact JSON.
func formatDocument(userID string, doc remote.Document) string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "user %s", userID)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s: %s", k, formatValue(doc[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
