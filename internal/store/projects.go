package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/quiver/internal/model"
)

// ProjectFilter narrows ListProjects results.
type ProjectFilter struct {
	// Status restricts results to one status when non-empty.
	Status model.ProjectStatus

	// Skip/Limit paginate. Limit <= 0 means no limit.
	Skip  int
	Limit int
}

// CreateProject inserts a new project row.
// Returns a CONSTRAINT_VIOLATED error on duplicate id or path.
func (s *Store) CreateProject(ctx context.Context, p model.Project) error {
	return s.withWriteRetry(ctx, "create project", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO projects (id, name, path, status, last_fetched, artifact_count)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Path, string(p.Status), toNanos(p.LastFetched), p.ArtifactCount)
		if err != nil {
			return fmt.Errorf("create project %s: %w", p.ID, err)
		}
		return nil
	})
}

// GetProject returns the project with the given id, or a NOT_FOUND error.
// Absence is expected and not logged: callers treat it as a cache miss.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, path, status, last_fetched, artifact_count
		FROM projects WHERE id = ?
	`, id)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, notFound("project", id)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("get project %s: %w", id, err)
	}
	return p, nil
}

// UpdateProject overwrites an existing project row.
// Returns a NOT_FOUND error if the id does not exist.
func (s *Store) UpdateProject(ctx context.Context, p model.Project) error {
	return s.withWriteRetry(ctx, "update project", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE projects
			SET name = ?, path = ?, status = ?, last_fetched = ?, artifact_count = ?
			WHERE id = ?
		`, p.Name, p.Path, string(p.Status), toNanos(p.LastFetched), p.ArtifactCount, p.ID)
		if err != nil {
			return fmt.Errorf("update project %s: %w", p.ID, err)
		}
		return requireRow(res, "project", p.ID)
	})
}

// DeleteProject removes a project and, via ON DELETE CASCADE, its artifacts.
// Returns a NOT_FOUND error if the id does not exist.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withWriteRetry(ctx, "delete project", func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete project %s: %w", id, err)
		}
		return requireRow(res, "project", id)
	})
}

// ListProjects returns projects matching the filter, ordered by id for
// stable results across calls.
func (s *Store) ListProjects(ctx context.Context, f ProjectFilter) ([]model.Project, error) {
	query := `
		SELECT id, name, path, status, last_fetched, artifact_count
		FROM projects
	`
	var args []any
	if f.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY id ASC`
	query, args = paginate(query, args, f.Skip, f.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

// SetProjectStatus updates one project's status.
// Returns a NOT_FOUND error if the id does not exist.
func (s *Store) SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus) error {
	return s.withWriteRetry(ctx, "set project status", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE projects SET status = ? WHERE id = ?`, string(status), id)
		if err != nil {
			return fmt.Errorf("set status of %s: %w", id, err)
		}
		return requireRow(res, "project", id)
	})
}

// SetAllProjectStatuses updates every project's status and returns the
// number of rows touched. Zero rows is not an error: invalidating an empty
// cache is a no-op.
func (s *Store) SetAllProjectStatuses(ctx context.Context, status model.ProjectStatus) (int64, error) {
	var n int64
	err := s.withWriteRetry(ctx, "set all project statuses", func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE projects SET status = ?`, string(status))
		if err != nil {
			return fmt.Errorf("set all statuses: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return fmt.Errorf("set all statuses: %w", err)
		}
		return nil
	})
	return n, err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (model.Project, error) {
	var p model.Project
	var status string
	var fetched int64
	if err := r.Scan(&p.ID, &p.Name, &p.Path, &status, &fetched, &p.ArtifactCount); err != nil {
		return model.Project{}, err
	}
	p.Status = model.ProjectStatus(status)
	p.LastFetched = fromNanos(fetched)
	return p, nil
}

// fromNanos converts a stored Unix-nano timestamp, mapping 0 to the zero
// time so "never fetched" round-trips cleanly.
func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

// toNanos is the inverse of fromNanos: the zero time stores as 0.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// requireRow converts a zero-row write into a NOT_FOUND error.
func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", entity, id, err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}

// paginate appends LIMIT/OFFSET clauses for skip/limit pagination.
// SQLite requires a LIMIT clause before OFFSET, so an unbounded skip uses
// LIMIT -1.
func paginate(query string, args []any, skip, limit int) (string, []any) {
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	} else if skip > 0 {
		query += ` LIMIT -1`
	}
	if skip > 0 {
		query += ` OFFSET ?`
		args = append(args, skip)
	}
	return query, args
}
