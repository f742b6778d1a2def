package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/quiver/internal/model"
)

// ArtifactFilter narrows ListArtifacts results.
type ArtifactFilter struct {
	// ProjectID restricts results to one project when non-empty.
	ProjectID string

	// OutdatedOnly restricts results to artifacts flagged outdated.
	OutdatedOnly bool

	// Skip/Limit paginate. Limit <= 0 means no limit.
	Skip  int
	Limit int
}

// CreateArtifact inserts a new artifact row.
// The referenced project must exist (foreign key constraint); a dangling
// project_id surfaces as a CONSTRAINT_VIOLATED error.
func (s *Store) CreateArtifact(ctx context.Context, a model.Artifact) error {
	return s.withWriteRetry(ctx, "create artifact", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO artifacts (id, name, type, project_id, deployed_version, upstream_version, is_outdated)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Name, a.Type, a.ProjectID, a.DeployedVersion, a.UpstreamVersion, boolToInt(a.IsOutdated))
		if err != nil {
			return fmt.Errorf("create artifact %s: %w", a.ID, err)
		}
		return nil
	})
}

// GetArtifact returns the artifact with the given id, or a NOT_FOUND error.
func (s *Store) GetArtifact(ctx context.Context, id string) (model.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, type, project_id, deployed_version, upstream_version, is_outdated
		FROM artifacts WHERE id = ?
	`, id)

	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Artifact{}, notFound("artifact", id)
	}
	if err != nil {
		return model.Artifact{}, fmt.Errorf("get artifact %s: %w", id, err)
	}
	return a, nil
}

// UpdateArtifact overwrites an existing artifact row.
// Returns a NOT_FOUND error if the id does not exist.
func (s *Store) UpdateArtifact(ctx context.Context, a model.Artifact) error {
	return s.withWriteRetry(ctx, "update artifact", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE artifacts
			SET name = ?, type = ?, project_id = ?, deployed_version = ?, upstream_version = ?, is_outdated = ?
			WHERE id = ?
		`, a.Name, a.Type, a.ProjectID, a.DeployedVersion, a.UpstreamVersion, boolToInt(a.IsOutdated), a.ID)
		if err != nil {
			return fmt.Errorf("update artifact %s: %w", a.ID, err)
		}
		return requireRow(res, "artifact", a.ID)
	})
}

// DeleteArtifact removes one artifact row.
// Returns a NOT_FOUND error if the id does not exist.
func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	return s.withWriteRetry(ctx, "delete artifact", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete artifact %s: %w", id, err)
		}
		return requireRow(res, "artifact", id)
	})
}

// ListArtifacts returns artifacts matching the filter, ordered by id for
// stable results across calls.
func (s *Store) ListArtifacts(ctx context.Context, f ArtifactFilter) ([]model.Artifact, error) {
	query := `
		SELECT id, name, type, project_id, deployed_version, upstream_version, is_outdated
		FROM artifacts
	`
	var conds []string
	var args []any
	if f.ProjectID != "" {
		conds = append(conds, `project_id = ?`)
		args = append(args, f.ProjectID)
	}
	if f.OutdatedOnly {
		conds = append(conds, `is_outdated = 1`)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, f.Skip, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []model.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

func scanArtifact(r rowScanner) (model.Artifact, error) {
	var a model.Artifact
	var outdated int
	if err := r.Scan(&a.ID, &a.Name, &a.Type, &a.ProjectID,
		&a.DeployedVersion, &a.UpstreamVersion, &outdated); err != nil {
		return model.Artifact{}, err
	}
	a.IsOutdated = outdated != 0
	return a, nil
}
