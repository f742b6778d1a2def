package refresh

import (
	"context"
	"errors"
	"time"
)

// DefaultInterval is the scheduler tick when not configured.
const DefaultInterval = time.Hour

// StartScheduler begins periodic RefreshAll invocations on the given
// interval. Returns an error when the scheduler is already running.
func (j *Job) StartScheduler(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}

	j.mu.Lock()
	if j.schedOn {
		j.mu.Unlock()
		return errors.New("scheduler already running")
	}
	j.schedOn = true
	j.schedCh = make(chan struct{})
	j.nextRun = j.now().Add(interval)
	stop := j.schedCh
	j.schedWg.Add(1)
	j.mu.Unlock()

	go j.schedLoop(ctx, interval, stop)

	j.log.Info("refresh scheduler started", "interval", interval)
	return nil
}

func (j *Job) schedLoop(ctx context.Context, interval time.Duration, stop <-chan struct{}) {
	defer j.schedWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.RefreshAll(ctx)
			j.RefreshMarketplace(ctx)
			j.mu.Lock()
			j.nextRun = j.now().Add(interval)
			j.mu.Unlock()
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopScheduler stops the periodic loop and waits for an in-flight tick to
// finish. Idempotent.
func (j *Job) StopScheduler() {
	j.mu.Lock()
	if !j.schedOn {
		j.mu.Unlock()
		return
	}
	j.schedOn = false
	close(j.schedCh)
	j.schedCh = nil
	j.nextRun = time.Time{}
	j.mu.Unlock()

	j.schedWg.Wait()
	j.log.Info("refresh scheduler stopped")
}

// Status reports whether a refresh is in flight and the scheduler's next
// and last run times.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{
		IsRunning:   j.inFlight.Load() > 0,
		NextRunTime: j.nextRun,
		LastRunTime: j.lastRun,
	}
}
