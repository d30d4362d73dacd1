package cli

import (
	"fmt"
	"log/slog"

	"github.com/roach88/pomoflo/internal/config"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/sound"
	"github.com/roach88/pomoflo/internal/store"
)

// openStore opens the remote document store selected by cfg. The returned
// close function is always safe to call.
func openStore(cfg config.Config) (remote.Store, func(), error) {
	switch cfg.Store.Kind {
	case config.StoreSQLite:
		slog.Info("opening database", "path", cfg.Store.Path)
		st, err := store.Open(cfg.Store.Path, store.WithPollInterval(cfg.Store.PollInterval))
		if err != nil {
			return nil, func() {}, err
		}
		return st, func() {
			if err := st.Close(); err != nil {
				slog.Error("error closing database", "error", err)
			}
		}, nil
	case config.StoreHTTP:
		slog.Info("using document server", "url", cfg.Store.URL)
		return remote.NewHTTPStore(cfg.Store.URL), func() {}, nil
	case config.StoreMemory:
		slog.Warn("using in-memory store; nothing is persisted")
		return remote.NewMemoryStore(), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// newPlayer returns the configured sound player. Without a command sounds
// are only logged.
func newPlayer(cfg config.Config) (sound.Player, error) {
	if cfg.Player.Command == "" {
		return sound.LogPlayer{}, nil
	}
	return sound.NewExecPlayer(cfg.Player.Command)
}
