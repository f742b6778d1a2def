package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// Metadata returns the singleton cache metadata row. A freshly created
// database always has one (written by the schema migration), but a missing
// row degrades to zero values rather than an error.
func (s *Store) Metadata(ctx context.Context) (model.CacheMetadata, error) {
	var refreshed int64
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT last_refresh, schema_version FROM cache_metadata WHERE id = 1`,
	).Scan(&refreshed, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheMetadata{}, nil
	}
	if err != nil {
		return model.CacheMetadata{}, fmt.Errorf("get cache metadata: %w", err)
	}
	return model.CacheMetadata{
		LastRefresh:   fromNanos(refreshed),
		SchemaVersion: version,
	}, nil
}

// SetLastRefresh records the global refresh time.
func (s *Store) SetLastRefresh(ctx context.Context, at time.Time) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetLastRefresh(at)
	})
}
