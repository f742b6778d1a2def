// Package cache is the service layer over the metadata store.
//
// The Manager is the single point of thread-safety and business policy:
// staleness (TTL with a stale-inclusive boundary), bulk population,
// invalidation, and aggregate status. It owns the one process-wide mutex
// that makes check-then-act sequences atomic; the store below it owns the
// database retry discipline, and neither layer calls back up.
//
// Read methods never fail: the cache is not authoritative, so a broken
// read degrades to an empty result (or "stale") rather than propagating.
// Write methods propagate errors, since a silent write failure would
// corrupt caller assumptions.
//
// CountCache is an independent in-process TTL map for per-collection
// artifact counts. It never touches the database.
package cache
