// Package stores provides the durable surfaces of the orchestrator: the
// file-backed plan archive, the per-plan dispatch state with atomic
// replace semantics, the exclusive-create queue writer, and an advisory
// SQLite event log.
package stores
