// Package ledger persists per-track, per-stage analysis state in SQLite.
//
// The ledger is the single source of truth for pipeline progress: stage rows
// move pending → running → done/failed, with retry and skipped as first-class
// states. Claims (MarkRunning) are conditional updates so concurrent workers
// never hold the same track×stage, and result payloads commit in the same
// transaction as the state change that references them.
package ledger
