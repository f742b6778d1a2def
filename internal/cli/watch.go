package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/quiver/internal/refresh"
	"github.com/roach88/quiver/internal/store"
	"github.com/roach88/quiver/internal/watch"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "watch [path...]",
		Short: "Watch project directories and invalidate on change",
		Long: `Watch configured project roots (plus any paths given as arguments) for
artifact file changes, marking the owning cached project stale after a
debounce window. Runs until interrupted.

Unless --no-scheduler is set, the background refresh job also runs on its
configured interval so invalidated projects are re-fetched.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd, args, !noScheduler)
		},
	}

	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "watch only, without periodic refresh")

	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command, extraPaths []string, scheduler bool) error {
	formatter := newFormatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer eng.Close()

	paths := append([]string{}, eng.cfg.WatchPaths...)
	paths = append(paths, extraPaths...)
	if len(paths) == 0 {
		return NewExitError(ExitCommandError, "no watch paths: configure watch_paths or pass directories")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := watch.NewWatcher(eng.cache, watch.Config{
		Debounce: eng.cfg.Debounce(),
	}, watch.WithWatchLogger(eng.log))
	w.SetProjects(projectRefs(eng, ctx))

	if err := w.Start(ctx, paths); err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "starting watcher failed", err)
	}
	// Shutdown flush still needs a live context once ctx is canceled.
	defer w.Stop(context.Background())

	var job *refresh.Job
	if scheduler {
		job = refresh.NewJob(eng.cache, &lockfileSource{cache: eng.cache},
			refresh.WithJobLogger(eng.log),
			refresh.WithMaxConcurrent(eng.cfg.Refresh.MaxConcurrent),
			refresh.WithRetry(refresh.RetryPolicy{
				Attempts: eng.cfg.Refresh.Retry.Attempts,
				Base:     eng.cfg.RetryBase(),
				Max:      eng.cfg.RetryMax(),
			}),
		)
		// Re-resolve project paths after each refresh so renamed projects
		// keep mapping to the right invalidation key.
		job.AddEventListener(func(ev refresh.Event) {
			if ev.Type == refresh.EventCompleted {
				w.SetProjects(projectRefs(eng, ctx))
			}
		})
		if err := job.StartScheduler(ctx, eng.cfg.RefreshInterval()); err != nil {
			return WrapExitError(ExitCommandError, "starting refresh scheduler failed", err)
		}
		defer job.StopScheduler()
	}

	fmt.Fprintf(formatter.Writer, "Watching %d path(s); press Ctrl-C to stop\n", len(paths))
	<-ctx.Done()
	fmt.Fprintln(formatter.Writer, "Stopping...")
	return nil
}

// projectRefs snapshots cached project ids and paths for the watcher's
// path-to-project resolution.
func projectRefs(eng *engine, ctx context.Context) []watch.ProjectRef {
	projects := eng.cache.Projects(ctx, store.ProjectFilter{})
	refs := make([]watch.ProjectRef, 0, len(projects))
	for _, p := range projects {
		refs = append(refs, watch.ProjectRef{ID: p.ID, Path: p.Path})
	}
	return refs
}
