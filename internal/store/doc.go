// Package store provides durable storage for cached project and artifact
// metadata.
//
// The store is a single SQLite database file opened in WAL mode, so readers
// never block on the single active writer. All multi-row updates (a project
// plus its artifact set, a marketplace batch plus its TTL prune) run inside
// one short-lived transaction. Writes that lose a lock race are retried with
// exponential backoff before surfacing a transient error; reads never retry.
//
// The store is the only component that touches the database file. Callers
// go through the cache manager, which layers staleness policy and the
// process-wide concurrency boundary on top.
package store
