package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quiver/internal/cache"
	"github.com/roach88/quiver/internal/config"
	"github.com/roach88/quiver/internal/store"
)

// engine bundles the wired-up cache components a command operates on.
type engine struct {
	cfg    config.Config
	store  *store.Store
	cache  *cache.Manager
	counts *cache.CountCache
	log    *slog.Logger
}

// openEngine loads configuration and opens the cache database. A corrupt
// database is rebuilt rather than reported; the cache is derived state.
func openEngine(opts *RootOptions) (*engine, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "loading configuration failed", err)
	}

	log := newLogger(opts.Verbose)

	s, err := store.OpenOrRebuild(cfg.DBPath, store.WithLogger(log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "opening cache database failed", err)
	}

	m := cache.NewManager(s,
		cache.WithLogger(log),
		cache.WithTTL(cfg.TTL()),
		cache.WithMarketplaceTTL(cfg.MarketplaceTTL()),
	)
	counts := cache.NewCountCache(cache.WithCountTTL(cfg.CountTTL()))

	return &engine{cfg: cfg, store: s, cache: m, counts: counts, log: log}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}

// newLogger builds the CLI logger. Quiet by default so command output
// stays parseable; verbose mode turns on debug logging to stderr.
func newLogger(verbose bool) *slog.Logger {
	if !verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// newFormatter builds the command's output formatter from global flags.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}
