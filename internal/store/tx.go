package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// Tx is a scoped write transaction. Methods on Tx participate in a single
// SQLite transaction: either every statement commits or none do.
type Tx struct {
	tx  *sql.Tx
	ctx context.Context
}

// WithTx runs fn inside a write transaction with guaranteed rollback on
// error or panic and guaranteed commit on nil return. The whole transaction
// is retried as a unit on lock contention, so fn must be idempotent
// (upsert-shaped, as all cache writes are).
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	return s.withWriteRetry(ctx, "transaction", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if err := fn(&Tx{tx: tx, ctx: ctx}); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// UpsertProject inserts or replaces the project row in place.
// Status, last_fetched and artifact_count are overwritten: population is
// a full replacement of the project's cached state.
func (t *Tx) UpsertProject(p model.Project) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO projects (id, name, path, status, last_fetched, artifact_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name           = excluded.name,
			path           = excluded.path,
			status         = excluded.status,
			last_fetched   = excluded.last_fetched,
			artifact_count = excluded.artifact_count
	`, p.ID, p.Name, p.Path, string(p.Status), toNanos(p.LastFetched), p.ArtifactCount)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

// UpsertArtifact inserts or replaces one artifact row.
func (t *Tx) UpsertArtifact(a model.Artifact) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO artifacts (id, name, type, project_id, deployed_version, upstream_version, is_outdated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name             = excluded.name,
			type             = excluded.type,
			project_id       = excluded.project_id,
			deployed_version = excluded.deployed_version,
			upstream_version = excluded.upstream_version,
			is_outdated      = excluded.is_outdated
	`, a.ID, a.Name, a.Type, a.ProjectID, a.DeployedVersion, a.UpstreamVersion, boolToInt(a.IsOutdated))
	if err != nil {
		return fmt.Errorf("upsert artifact %s: %w", a.ID, err)
	}
	return nil
}

// DeleteProjectArtifactsExcept removes the project's artifacts whose ids are
// not in keep. With an empty keep set, all of the project's artifacts go.
func (t *Tx) DeleteProjectArtifactsExcept(projectID string, keep []string) error {
	if len(keep) == 0 {
		_, err := t.tx.ExecContext(t.ctx,
			`DELETE FROM artifacts WHERE project_id = ?`, projectID)
		if err != nil {
			return fmt.Errorf("delete artifacts of %s: %w", projectID, err)
		}
		return nil
	}

	query := `DELETE FROM artifacts WHERE project_id = ? AND id NOT IN (?` +
		strings.Repeat(",?", len(keep)-1) + `)`
	args := make([]any, 0, len(keep)+1)
	args = append(args, projectID)
	for _, id := range keep {
		args = append(args, id)
	}
	if _, err := t.tx.ExecContext(t.ctx, query, args...); err != nil {
		return fmt.Errorf("delete artifacts of %s: %w", projectID, err)
	}
	return nil
}

// UpsertMarketplaceEntry inserts or updates one marketplace entry in place.
// Present ids are updated, never duplicated.
func (t *Tx) UpsertMarketplaceEntry(e model.MarketplaceEntry) error {
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO marketplace_entries (id, name, type, url, description, cached_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name        = excluded.name,
			type        = excluded.type,
			url         = excluded.url,
			description = excluded.description,
			cached_at   = excluded.cached_at,
			payload     = excluded.payload
	`, e.ID, e.Name, e.Type, e.URL, e.Description, toNanos(e.CachedAt), string(payload))
	if err != nil {
		return fmt.Errorf("upsert marketplace entry %s: %w", e.ID, err)
	}
	return nil
}

// PruneMarketplaceBefore deletes entries cached strictly before the cutoff.
func (t *Tx) PruneMarketplaceBefore(cutoff time.Time) (int64, error) {
	res, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM marketplace_entries WHERE cached_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune marketplace entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune marketplace entries: %w", err)
	}
	return n, nil
}

// SetLastRefresh records the global refresh time on the metadata row.
func (t *Tx) SetLastRefresh(at time.Time) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO cache_metadata (id, last_refresh, schema_version) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_refresh = excluded.last_refresh
	`, toNanos(at), currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("set last refresh: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
