package watch

import (
	"context"
	"time"
)

// debouncer coalesces bursts of invalidation keys. Incoming keys are
// recorded with their last-occurrence time; flush emits each key exactly
// once after it has been quiet for the window.
//
// The debouncer owns its own mutex (via the map guard in Watcher) and
// never calls into the manager while holding it.
type debouncer struct {
	window  time.Duration
	pending map[invKey]time.Time
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[invKey]time.Time),
	}
}

// record notes an occurrence of the key at the given time. Multiple rapid
// events for one key inside the window collapse into a single entry.
func (d *debouncer) record(k invKey, at time.Time) {
	d.pending[k] = at
}

// take removes and returns the keys whose last occurrence is at least the
// window before now. With drain set, every pending key is taken regardless
// of age (shutdown path).
func (d *debouncer) take(now time.Time, drain bool) []invKey {
	var due []invKey
	for k, last := range d.pending {
		if drain || now.Sub(last) >= d.window {
			due = append(due, k)
			delete(d.pending, k)
		}
	}
	return due
}

// size returns the number of pending keys.
func (d *debouncer) size() int {
	return len(d.pending)
}

// dispatch issues exactly one manager call per key.
func (w *Watcher) dispatch(ctx context.Context, keys []invKey) {
	for _, k := range keys {
		var err error
		if k == globalKey {
			err = w.inv.InvalidateAll(ctx)
		} else {
			err = w.inv.InvalidateCache(ctx, k.projectID)
		}
		if err != nil {
			w.log.Warn("invalidation failed",
				"project", k.projectID, "profile_root", k.profileRoot, "error", err)
			continue
		}
		w.log.Debug("cache invalidated",
			"project", k.projectID, "profile_root", k.profileRoot)
	}
}
