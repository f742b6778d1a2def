// Package watch translates raw filesystem notifications into scoped,
// debounced cache invalidations.
//
// Each watched root owns an independent fsnotify subscription and pump
// goroutine; recognized events are reduced to an invalidation key (project
// plus profile root, or a global key when the path resolves to no known
// project) and enqueued into a shared debounce map. A single ticker
// goroutine flushes keys that have been quiet for the debounce window,
// issuing exactly one invalidation per key no matter how many raw events
// collapsed into it.
//
// Stopping the watcher drains the debounce map before returning, so no
// already-observed change is silently dropped on shutdown.
package watch
