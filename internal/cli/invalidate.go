package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// InvalidateOutput is the JSON payload for invalidation results.
type InvalidateOutput struct {
	Invalidated string `json:"invalidated"` // project id or "all"
}

// NewInvalidateCommand creates the invalidate command.
func NewInvalidateCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "invalidate [project-id]",
		Short: "Mark cached projects stale",
		Long: `Mark a project (or with --all, every project) stale so the next
refresh re-fetches it. Cached rows are retained; only staleness changes.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return NewExitError(ExitCommandError, "provide a project id or --all, not both")
			}
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runInvalidate(rootOpts, cmd, id)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "invalidate every cached project")

	return cmd
}

func runInvalidate(opts *RootOptions, cmd *cobra.Command, projectID string) error {
	formatter := newFormatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer eng.Close()

	ctx := cmd.Context()
	target := projectID
	if projectID == "" {
		target = "all"
		err = eng.cache.InvalidateAll(ctx)
	} else {
		err = eng.cache.InvalidateCache(ctx, projectID)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalidation failed", err)
	}

	eng.counts.InvalidateAll()

	if formatter.Format == "json" {
		return formatter.Success(InvalidateOutput{Invalidated: target})
	}
	if target == "all" {
		fmt.Fprintln(formatter.Writer, "✓ All projects marked stale")
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Project %s marked stale\n", target)
	}
	return nil
}
