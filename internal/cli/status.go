package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/quiver/internal/cache"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cache health and totals",
		Long: `Show cache health: project and artifact totals, staleness counts,
database size, and the last background refresh time.

A degraded status means the cache database could not be read; counts are
zero and every project is treated as stale until the next refresh.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return err
	}
	defer eng.Close()

	formatter.VerboseLog("cache database: %s", eng.store.Path())

	st := eng.cache.CacheStatus(cmd.Context())

	if formatter.Format == "json" {
		return formatter.Success(st)
	}
	writeStatusText(formatter, st)
	if st.Degraded {
		return NewExitError(ExitFailure, "cache status degraded")
	}
	return nil
}

func writeStatusText(f *OutputFormatter, st cache.Status) {
	if st.Degraded {
		fmt.Fprintln(f.Writer, "Cache status: DEGRADED (database unreadable, counts zeroed)")
		return
	}

	fmt.Fprintln(f.Writer, "Cache status")
	fmt.Fprintf(f.Writer, "  Projects:           %d (%d stale)\n", st.TotalProjects, st.StaleProjects)
	fmt.Fprintf(f.Writer, "  Artifacts:          %d (%d outdated)\n", st.TotalArtifacts, st.OutdatedArtifacts)
	fmt.Fprintf(f.Writer, "  Database size:      %s\n", formatBytes(st.DatabaseSizeBytes))
	fmt.Fprintf(f.Writer, "  Schema version:     %d\n", st.SchemaVersion)
	fmt.Fprintf(f.Writer, "  Last refresh:       %s\n", formatTime(st.LastRefresh))
	fmt.Fprintf(f.Writer, "  Oldest fetch:       %s\n", formatTime(st.OldestFetch))
	fmt.Fprintf(f.Writer, "  Newest fetch:       %s\n", formatTime(st.NewestFetch))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatBytes(n int64) string {
	const kib = 1024
	switch {
	case n >= kib*kib:
		return fmt.Sprintf("%.1f MiB", float64(n)/(kib*kib))
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
