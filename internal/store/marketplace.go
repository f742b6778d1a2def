package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// UpsertMarketplaceEntries writes a refresh batch in one transaction:
// non-present ids are inserted, present ids are updated in place, and
// entries cached before the cutoff are pruned in the same pass.
// Returns the number of pruned entries.
//
// A zero cutoff disables pruning.
func (s *Store) UpsertMarketplaceEntries(ctx context.Context, entries []model.MarketplaceEntry, pruneBefore time.Time) (int64, error) {
	var pruned int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		for _, e := range entries {
			if err := tx.UpsertMarketplaceEntry(e); err != nil {
				return err
			}
		}
		if pruneBefore.IsZero() {
			return nil
		}
		n, err := tx.PruneMarketplaceBefore(pruneBefore)
		if err != nil {
			return err
		}
		pruned = n
		return nil
	})
	return pruned, err
}

// GetMarketplaceEntry returns one entry by id, or a NOT_FOUND error.
func (s *Store) GetMarketplaceEntry(ctx context.Context, id string) (model.MarketplaceEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, url, description, cached_at, payload
		FROM marketplace_entries WHERE id = ?
	`, id)

	e, err := scanMarketplaceEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.MarketplaceEntry{}, notFound("marketplace entry", id)
	}
	if err != nil {
		return model.MarketplaceEntry{}, fmt.Errorf("get marketplace entry %s: %w", id, err)
	}
	return e, nil
}

// ListMarketplaceEntries returns entries ordered by id, optionally filtered
// by type.
func (s *Store) ListMarketplaceEntries(ctx context.Context, typeFilter string) ([]model.MarketplaceEntry, error) {
	query := `
		SELECT id, name, type, url, description, cached_at, payload
		FROM marketplace_entries
	`
	var args []any
	if typeFilter != "" {
		query += ` WHERE type = ?`
		args = append(args, typeFilter)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query marketplace entries: %w", err)
	}
	defer rows.Close()

	entries := []model.MarketplaceEntry{}
	for rows.Next() {
		e, err := scanMarketplaceEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan marketplace entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate marketplace entries: %w", err)
	}
	return entries, nil
}

// NewestMarketplaceCachedAt returns the most recent cached_at across all
// entries, or the zero time when the marketplace cache is empty.
func (s *Store) NewestMarketplaceCachedAt(ctx context.Context) (time.Time, error) {
	var nanos sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(cached_at) FROM marketplace_entries`).Scan(&nanos)
	if err != nil {
		return time.Time{}, fmt.Errorf("query marketplace freshness: %w", err)
	}
	if !nanos.Valid {
		return time.Time{}, nil
	}
	return fromNanos(nanos.Int64), nil
}

func scanMarketplaceEntry(r rowScanner) (model.MarketplaceEntry, error) {
	var e model.MarketplaceEntry
	var cached int64
	var payload string
	if err := r.Scan(&e.ID, &e.Name, &e.Type, &e.URL, &e.Description, &cached, &payload); err != nil {
		return model.MarketplaceEntry{}, err
	}
	e.CachedAt = fromNanos(cached)
	e.Payload = json.RawMessage(payload)
	return e, nil
}
