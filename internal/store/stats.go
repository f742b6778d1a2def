package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Stats aggregates row counts and fetch-time bounds for status reporting.
type Stats struct {
	TotalProjects     int
	StaleProjects     int
	TotalArtifacts    int
	OutdatedArtifacts int

	// OldestFetch/NewestFetch bound projects' last_fetched times.
	// Zero when the cache holds no fetched projects.
	OldestFetch time.Time
	NewestFetch time.Time
}

// Stats computes the aggregate counters in a handful of indexed queries.
// All reads, no retries.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'stale' THEN 1 ELSE 0 END), 0)
		FROM projects
	`).Scan(&st.TotalProjects, &st.StaleProjects)
	if err != nil {
		return Stats{}, fmt.Errorf("count projects: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN is_outdated = 1 THEN 1 ELSE 0 END), 0)
		FROM artifacts
	`).Scan(&st.TotalArtifacts, &st.OutdatedArtifacts)
	if err != nil {
		return Stats{}, fmt.Errorf("count artifacts: %w", err)
	}

	var oldest, newest sql.NullInt64
	err = s.db.QueryRowContext(ctx, `
		SELECT MIN(last_fetched), MAX(last_fetched)
		FROM projects WHERE last_fetched > 0
	`).Scan(&oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch-time bounds: %w", err)
	}
	if oldest.Valid {
		st.OldestFetch = fromNanos(oldest.Int64)
	}
	if newest.Valid {
		st.NewestFetch = fromNanos(newest.Int64)
	}

	return st, nil
}
