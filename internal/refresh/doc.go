// Package refresh keeps the cache eventually consistent with upstream
// artifact sources.
//
// The Job runs on demand (RefreshAll, RefreshProject) and on a schedule
// (StartScheduler). A refresh determines the stale project set, fans one
// task per project out across a worker pool bounded by max_concurrent,
// diffs upstream versions against cached state, and writes back through
// the cache manager. Transient failures retry with exponential backoff;
// failures surviving all retries are recorded per project and never abort
// sibling refreshes.
//
// Each invocation emits an event stream - started, one project_refreshed
// or failed per project, completed - to registered listeners. A panicking
// listener is recovered and logged so it cannot abort the pipeline.
package refresh
