package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/quiver/internal/refresh"
)

// RefreshOutput is the JSON payload for refresh results.
type RefreshOutput struct {
	Success           bool                   `json:"success"`
	ProjectsRefreshed int                    `json:"projects_refreshed"`
	ChangesDetected   int                    `json:"changes_detected"`
	DurationMs        int64                  `json:"duration_ms"`
	Errors            []refresh.ProjectError `json:"errors,omitempty"`
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "refresh [project-id]",
		Short: "Refresh stale cached projects",
		Long: `Refresh cached upstream versions from each project's lock file.

With a project id, refreshes that project regardless of staleness.
With --all, refreshes every stale project.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && len(args) == 1 {
				return NewExitError(ExitCommandError, "provide a project id or --all, not both")
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			// Bare "quiver refresh" and "--all" both refresh everything stale.
			return runRefresh(rootOpts, cmd, id)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "refresh every stale project")

	return cmd
}

func runRefresh(opts *RootOptions, cmd *cobra.Command, projectID string) error {
	formatter := newFormatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer eng.Close()

	job := refresh.NewJob(eng.cache, &lockfileSource{cache: eng.cache},
		refresh.WithJobLogger(eng.log),
		refresh.WithMaxConcurrent(eng.cfg.Refresh.MaxConcurrent),
		refresh.WithRetry(refresh.RetryPolicy{
			Attempts: eng.cfg.Refresh.Retry.Attempts,
			Base:     eng.cfg.RetryBase(),
			Max:      eng.cfg.RetryMax(),
		}),
	)

	var result refresh.Result
	if projectID != "" {
		formatter.VerboseLog("refreshing project %s", projectID)
		result = job.RefreshProject(cmd.Context(), projectID)
	} else {
		formatter.VerboseLog("refreshing all stale projects")
		result = job.RefreshAll(cmd.Context())
	}

	// Counts derived from the refreshed tables are no longer trustworthy.
	eng.counts.InvalidateAll()

	return outputRefreshResult(formatter, result)
}

func outputRefreshResult(formatter *OutputFormatter, result refresh.Result) error {
	out := RefreshOutput{
		Success:           result.Success,
		ProjectsRefreshed: result.ProjectsRefreshed,
		ChangesDetected:   result.ChangesDetected,
		DurationMs:        result.Duration.Milliseconds(),
		Errors:            result.Errors,
	}

	if formatter.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(formatter.Writer, "Refreshed %d project(s), %d change(s) detected\n",
			out.ProjectsRefreshed, out.ChangesDetected)
		for _, pe := range out.Errors {
			fmt.Fprintf(formatter.Writer, "  ✗ %s: %s\n", pe.ProjectID, pe.Err)
		}
	}

	if !result.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("refresh failed for %d project(s)", len(result.Errors)))
	}
	return nil
}
