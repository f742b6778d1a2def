package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/quiver/internal/model"
	"github.com/roach88/quiver/internal/store"
)

// DefaultTTL is the staleness window applied when no TTL is configured.
const DefaultTTL = time.Hour

// DefaultMarketplaceTTL bounds marketplace entry age before pruning.
const DefaultMarketplaceTTL = 24 * time.Hour

// Manager enforces staleness policy and the process concurrency boundary
// over the store. Safe for concurrent use.
type Manager struct {
	store *store.Store
	log   *slog.Logger
	ttl   time.Duration

	// marketTTL is the prune age for marketplace entries.
	marketTTL time.Duration

	// now is injected for TTL boundary tests.
	now func() time.Time

	// mu guards composite check-then-act sequences so a staleness check
	// and the write it gates are never interleaved with another writer's.
	// Never held across a call into the watcher or refresh job.
	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL sets the project staleness window.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// WithMarketplaceTTL sets the marketplace prune age.
func WithMarketplaceTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.marketTTL = ttl }
}

// WithLogger sets the manager's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithClock overrides the time source. Tests use this to pin "now".
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager over an opened store.
func NewManager(st *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		log:       slog.Default(),
		ttl:       DefaultTTL,
		marketTTL: DefaultMarketplaceTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured staleness window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// PopulateProjects writes a population batch. Each input fully replaces the
// project's cached artifact set inside one store transaction: the project
// row is upserted, artifacts no longer present are deleted, and the rest are
// upserted. Returns the count of projects written.
//
// The whole batch is validated before the first transaction opens. A failure
// mid-batch leaves earlier projects committed (each project is atomic, the
// batch is not).
func (m *Manager) PopulateProjects(ctx context.Context, inputs []model.ProjectInput) (int, error) {
	for _, in := range inputs {
		if err := in.Validate(); err != nil {
			return 0, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	written := 0
	for _, in := range inputs {
		if err := m.populateOne(ctx, in); err != nil {
			m.log.Error("populate project failed",
				"project", in.ID, "written", written, "error", err)
			return written, err
		}
		written++
	}
	return written, nil
}

func (m *Manager) populateOne(ctx context.Context, in model.ProjectInput) error {
	now := m.now()
	keep := make([]string, 0, len(in.Artifacts))
	artifacts := make([]model.Artifact, 0, len(in.Artifacts))
	for _, a := range in.Artifacts {
		keep = append(keep, a.ID)
		artifacts = append(artifacts, model.Artifact{
			ID:              a.ID,
			Name:            a.Name,
			Type:            a.Type,
			ProjectID:       in.ID,
			DeployedVersion: a.DeployedVersion,
			UpstreamVersion: a.UpstreamVersion,
			IsOutdated:      model.Outdated(a.DeployedVersion, a.UpstreamVersion),
		})
	}

	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.UpsertProject(model.Project{
			ID:            in.ID,
			Name:          in.Name,
			Path:          in.Path,
			Status:        model.StatusActive,
			LastFetched:   now,
			ArtifactCount: len(artifacts),
		}); err != nil {
			return err
		}
		if err := tx.DeleteProjectArtifactsExcept(in.ID, keep); err != nil {
			return err
		}
		for _, a := range artifacts {
			if err := tx.UpsertArtifact(a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Project returns one cached project. Absence (or any read failure, which
// degrades after logging) surfaces as a NOT_FOUND store error.
func (m *Manager) Project(ctx context.Context, id string) (model.Project, error) {
	p, err := m.store.GetProject(ctx, id)
	if err != nil && !store.IsNotFound(err) {
		m.log.Warn("project read degraded", "project", id, "error", err)
		return model.Project{}, &store.StoreError{Code: store.ErrCodeNotFound, Entity: "project", ID: id, Err: err}
	}
	return p, err
}

// Projects lists cached projects. Read failures degrade to an empty slice.
func (m *Manager) Projects(ctx context.Context, f store.ProjectFilter) []model.Project {
	projects, err := m.store.ListProjects(ctx, f)
	if err != nil {
		m.log.Warn("project list degraded", "error", err)
		return []model.Project{}
	}
	return projects
}

// Artifacts lists cached artifacts. Read failures degrade to an empty slice.
func (m *Manager) Artifacts(ctx context.Context, f store.ArtifactFilter) []model.Artifact {
	artifacts, err := m.store.ListArtifacts(ctx, f)
	if err != nil {
		m.log.Warn("artifact list degraded", "error", err)
		return []model.Artifact{}
	}
	return artifacts
}

// ProjectArtifacts lists one project's artifacts without degrading: read
// failures surface to the caller. Writers deriving a replacement artifact
// set must use this, not Artifacts — an empty slice written back would
// delete every cached artifact for the project.
func (m *Manager) ProjectArtifacts(ctx context.Context, projectID string) ([]model.Artifact, error) {
	artifacts, err := m.store.ListArtifacts(ctx, store.ArtifactFilter{ProjectID: projectID})
	if err != nil {
		m.log.Error("artifact read failed", "project", projectID, "error", err)
		return nil, err
	}
	return artifacts, nil
}

// IsCacheStale reports whether the project needs a refresh.
//
// True when the entry is absent, unreadable, explicitly invalidated, or its
// age has reached the TTL. The boundary is inclusive: exactly at TTL counts
// as stale.
func (m *Manager) IsCacheStale(ctx context.Context, id string) bool {
	p, err := m.store.GetProject(ctx, id)
	if err != nil {
		// Absent and unreadable both mean "refresh me"
		return true
	}
	return m.staleProject(p)
}

func (m *Manager) staleProject(p model.Project) bool {
	if p.Status == model.StatusStale || p.Status == model.StatusError {
		return true
	}
	if p.LastFetched.IsZero() {
		return true
	}
	return m.now().Sub(p.LastFetched) >= m.ttl
}

// StaleProjects returns the projects currently needing a refresh: those
// explicitly invalidated plus those whose TTL has lapsed. Read failures
// degrade to an empty slice.
func (m *Manager) StaleProjects(ctx context.Context) []model.Project {
	projects, err := m.store.ListProjects(ctx, store.ProjectFilter{})
	if err != nil {
		m.log.Warn("stale scan degraded", "error", err)
		return []model.Project{}
	}
	stale := []model.Project{}
	for _, p := range projects {
		if m.staleProject(p) {
			stale = append(stale, p)
		}
	}
	return stale
}

// InvalidateCache marks one project stale. Idempotent: repeated calls are
// no-ops after the first, and invalidating an unknown project is a no-op
// (the watcher may race a hard delete).
func (m *Manager) InvalidateCache(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.SetProjectStatus(ctx, id, model.StatusStale)
	if store.IsNotFound(err) {
		m.log.Debug("invalidate for unknown project", "project", id)
		return nil
	}
	if err != nil {
		m.log.Error("invalidate failed", "project", id, "error", err)
		return err
	}
	return nil
}

// InvalidateAll marks every cached project stale. Idempotent.
func (m *Manager) InvalidateAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, err := m.store.SetAllProjectStatuses(ctx, model.StatusStale)
	if err != nil {
		m.log.Error("invalidate all failed", "error", err)
		return err
	}
	m.log.Debug("invalidated all projects", "count", n)
	return nil
}

// RecordRefresh stamps the global last-refresh time.
func (m *Manager) RecordRefresh(ctx context.Context) error {
	if err := m.store.SetLastRefresh(ctx, m.now()); err != nil {
		m.log.Error("record refresh failed", "error", err)
		return err
	}
	return nil
}
