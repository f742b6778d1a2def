package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/quiver/internal/model"
	"github.com/roach88/quiver/internal/store"
)

// DefaultMaxConcurrent caps refresh fan-out when not configured.
const DefaultMaxConcurrent = 4

// DefaultMarketplaceTTL gates marketplace refresh when not configured.
const DefaultMarketplaceTTL = 24 * time.Hour

// CacheManager is the slice of the cache manager the job depends on.
// ProjectArtifacts is deliberately the error-returning read: the job writes
// the artifact set back, so a degraded empty read must abort the attempt
// rather than masquerade as "no artifacts" and wipe the cached set.
type CacheManager interface {
	StaleProjects(ctx context.Context) []model.Project
	Project(ctx context.Context, id string) (model.Project, error)
	ProjectArtifacts(ctx context.Context, projectID string) ([]model.Artifact, error)
	PopulateProjects(ctx context.Context, inputs []model.ProjectInput) (int, error)
	RecordRefresh(ctx context.Context) error
	UpdateMarketplace(ctx context.Context, entries []model.MarketplaceEntry) (int64, error)
	IsMarketplaceStale(ctx context.Context, ttl time.Duration) bool
}

// RetryPolicy bounds the backoff for transient per-project failures
// (network errors, lock contention). Shaped like the store's policy but
// tuned independently: network retries tolerate longer waits.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy returns 3 attempts, 100ms base, 2s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 100 * time.Millisecond, Max: 2 * time.Second}
}

// Delay returns the backoff before the given retry.
func (p RetryPolicy) Delay(retry int) time.Duration {
	d := p.Base << uint(retry)
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Job schedules and executes cache refreshes. Safe for concurrent use.
type Job struct {
	cache  CacheManager
	source ArtifactSource
	market MarketplaceSource

	log           *slog.Logger
	now           func() time.Time
	maxConcurrent int
	retry         RetryPolicy
	marketTTL     time.Duration

	events *listenerSet

	// inFlight counts refresh invocations currently running. Overlapping
	// RefreshAll/RefreshProject calls each hold one increment, so Status
	// reports running until the last one finishes.
	inFlight atomic.Int32

	// mu guards scheduler state below.
	mu      sync.Mutex
	schedOn bool
	schedCh chan struct{}
	schedWg sync.WaitGroup
	nextRun time.Time
	lastRun time.Time
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithMaxConcurrent caps the refresh worker pool.
func WithMaxConcurrent(n int) JobOption {
	return func(j *Job) {
		if n > 0 {
			j.maxConcurrent = n
		}
	}
}

// WithRetry overrides the transient-failure retry policy.
func WithRetry(p RetryPolicy) JobOption {
	return func(j *Job) { j.retry = p }
}

// WithMarketplaceSource enables marketplace refresh.
func WithMarketplaceSource(src MarketplaceSource) JobOption {
	return func(j *Job) { j.market = src }
}

// WithMarketplaceTTL sets the staleness gate for marketplace refresh.
func WithMarketplaceTTL(ttl time.Duration) JobOption {
	return func(j *Job) { j.marketTTL = ttl }
}

// WithJobLogger sets the job's logger. Defaults to slog.Default().
func WithJobLogger(l *slog.Logger) JobOption {
	return func(j *Job) { j.log = l }
}

// WithJobClock overrides the time source for tests.
func WithJobClock(now func() time.Time) JobOption {
	return func(j *Job) { j.now = now }
}

// NewJob creates a refresh job over the cache manager and artifact source.
func NewJob(cache CacheManager, source ArtifactSource, opts ...JobOption) *Job {
	j := &Job{
		cache:         cache,
		source:        source,
		log:           slog.Default(),
		now:           time.Now,
		maxConcurrent: DefaultMaxConcurrent,
		retry:         DefaultRetryPolicy(),
		marketTTL:     DefaultMarketplaceTTL,
	}
	for _, opt := range opts {
		opt(j)
	}
	j.events = newListenerSet(j.log)
	return j
}

// AddEventListener registers a listener for refresh events and returns a
// handle for RemoveEventListener.
func (j *Job) AddEventListener(l Listener) int {
	return j.events.add(l)
}

// RemoveEventListener unregisters a listener.
func (j *Job) RemoveEventListener(id int) {
	j.events.remove(id)
}

// RefreshAll refreshes every stale project, fanning out across a worker
// pool bounded by max_concurrent. One project's failure never aborts its
// siblings: it lands in Result.Errors and the rest proceed.
func (j *Job) RefreshAll(ctx context.Context) Result {
	start := j.now()
	runID := uuid.Must(uuid.NewV7()).String()

	j.inFlight.Add(1)
	defer func() {
		j.inFlight.Add(-1)
		j.mu.Lock()
		j.lastRun = j.now()
		j.mu.Unlock()
	}()

	j.events.emit(Event{Type: EventStarted, Time: start, RunID: runID})

	stale := j.cache.StaleProjects(ctx)
	j.log.Info("refresh started", "run", runID, "stale_projects", len(stale))

	var (
		resMu  sync.Mutex
		result Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.maxConcurrent)
	for _, p := range stale {
		g.Go(func() error {
			changes, err := j.refreshOne(gctx, p)

			resMu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, ProjectError{
					ProjectID: p.ID, Err: err.Error(),
				})
			} else {
				result.ProjectsRefreshed++
				result.ChangesDetected += changes
			}
			resMu.Unlock()

			if err != nil {
				j.log.Warn("project refresh failed", "run", runID, "project", p.ID, "error", err)
				j.events.emit(Event{
					Type: EventFailed, Time: j.now(), RunID: runID,
					ProjectID: p.ID, Err: err.Error(),
				})
				// Failure is recorded, not propagated: siblings continue
				return nil
			}
			j.events.emit(Event{
				Type: EventProjectRefreshed, Time: j.now(), RunID: runID,
				ProjectID: p.ID, Changes: changes,
			})
			return nil
		})
	}
	_ = g.Wait() // goroutines record failures instead of returning them

	if err := j.cache.RecordRefresh(ctx); err != nil {
		j.log.Warn("recording refresh time failed", "run", runID, "error", err)
	}

	result.Success = len(result.Errors) == 0
	result.Duration = j.now().Sub(start)
	j.events.emit(Event{Type: EventCompleted, Time: j.now(), RunID: runID, Result: &result})
	j.log.Info("refresh completed", "run", runID,
		"refreshed", result.ProjectsRefreshed,
		"changes", result.ChangesDetected,
		"errors", len(result.Errors),
		"duration", result.Duration)
	return result
}

// RefreshProject refreshes one project on demand, regardless of staleness.
func (j *Job) RefreshProject(ctx context.Context, id string) Result {
	start := j.now()
	runID := uuid.Must(uuid.NewV7()).String()

	j.inFlight.Add(1)
	defer func() {
		j.inFlight.Add(-1)
		j.mu.Lock()
		j.lastRun = j.now()
		j.mu.Unlock()
	}()

	j.events.emit(Event{Type: EventStarted, Time: start, RunID: runID})

	var result Result
	p, err := j.cache.Project(ctx, id)
	if err == nil {
		var changes int
		changes, err = j.refreshOne(ctx, p)
		if err == nil {
			result.ProjectsRefreshed = 1
			result.ChangesDetected = changes
			j.events.emit(Event{
				Type: EventProjectRefreshed, Time: j.now(), RunID: runID,
				ProjectID: id, Changes: changes,
			})
		}
	}
	if err != nil {
		result.Errors = append(result.Errors, ProjectError{ProjectID: id, Err: err.Error()})
		j.events.emit(Event{
			Type: EventFailed, Time: j.now(), RunID: runID, ProjectID: id, Err: err.Error(),
		})
	}

	result.Success = len(result.Errors) == 0
	result.Duration = j.now().Sub(start)
	j.events.emit(Event{Type: EventCompleted, Time: j.now(), RunID: runID, Result: &result})
	return result
}

// refreshOne brings one project's upstream versions current. The source
// calls and the write-back run inside one retry loop: transient failures
// back off and try again, and the final error surfaces to the caller after
// exhaustion. Returns the number of artifacts whose upstream version
// changed.
func (j *Job) refreshOne(ctx context.Context, p model.Project) (int, error) {
	var lastErr error
	for attempt := 0; attempt < j.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(j.retry.Delay(attempt - 1)):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		changes, err := j.refreshAttempt(ctx, p)
		if err == nil {
			return changes, nil
		}
		lastErr = err
		if permanent(err) {
			break
		}
	}
	return 0, fmt.Errorf("refresh %s: %w", p.ID, lastErr)
}

// permanent reports whether an attempt failure cannot clear on retry:
// validation rejections, constraint violations, and missing rows stay
// broken no matter how long the backoff waits.
func permanent(err error) bool {
	return errors.Is(err, model.ErrInvalidInput) ||
		store.IsConstraint(err) ||
		store.IsNotFound(err)
}

func (j *Job) refreshAttempt(ctx context.Context, p model.Project) (int, error) {
	artifacts, err := j.cache.ProjectArtifacts(ctx, p.ID)
	if err != nil {
		return 0, fmt.Errorf("read artifacts for %s: %w", p.ID, err)
	}

	changes := 0
	inputs := make([]model.ArtifactInput, 0, len(artifacts))
	for _, a := range artifacts {
		info, ok, err := j.source.CheckUpdates(ctx, a)
		if err != nil {
			return 0, fmt.Errorf("check updates for %s: %w", a.ID, err)
		}
		upstream := a.UpstreamVersion
		if ok {
			upstream = info.LatestVersion
		}
		if upstream != a.UpstreamVersion {
			changes++
		}
		inputs = append(inputs, model.ArtifactInput{
			ID:              a.ID,
			Name:            a.Name,
			Type:            a.Type,
			DeployedVersion: a.DeployedVersion,
			UpstreamVersion: upstream,
		})
	}

	_, err = j.cache.PopulateProjects(ctx, []model.ProjectInput{{
		ID:        p.ID,
		Name:      p.Name,
		Path:      p.Path,
		Artifacts: inputs,
	}})
	if err != nil {
		return 0, fmt.Errorf("write back %s: %w", p.ID, err)
	}
	return changes, nil
}

// RefreshMarketplace refreshes marketplace entries through the optional
// marketplace source. Skipped entirely (zero work, Success true) when no
// source is configured or the marketplace cache is not yet stale.
func (j *Job) RefreshMarketplace(ctx context.Context) Result {
	start := j.now()
	if j.market == nil || !j.cache.IsMarketplaceStale(ctx, j.marketTTL) {
		return Result{Success: true}
	}

	runID := uuid.Must(uuid.NewV7()).String()
	j.events.emit(Event{Type: EventStarted, Time: start, RunID: runID})

	var result Result
	var lastErr error
	for attempt := 0; attempt < j.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(j.retry.Delay(attempt - 1)):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}
		var entries []model.MarketplaceEntry
		entries, lastErr = j.market.ListEntries(ctx)
		if lastErr != nil {
			continue
		}
		if _, lastErr = j.cache.UpdateMarketplace(ctx, entries); lastErr != nil {
			continue
		}
		result.EntriesUpdated = len(entries)
		break
	}
	if lastErr != nil {
		result.Errors = append(result.Errors, ProjectError{ProjectID: "marketplace", Err: lastErr.Error()})
	}

	result.Success = len(result.Errors) == 0
	result.Duration = j.now().Sub(start)
	j.events.emit(Event{Type: EventCompleted, Time: j.now(), RunID: runID, Result: &result})
	return result
}
