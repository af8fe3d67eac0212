// Package core provides the security master service: bulk reloads and
// lookups over the version store and the snapshot cache.
//
// This package holds the orchestration logic independent of any transport.
// It is used by the HTTP server, the CLI and tests without modification.
//
// # Architecture
//
//   - Version store: append-only history, one row per security and applied
//     date ([versionstore.Store]).
//   - Snapshot cache: the most recently loaded row per security, with
//     reverse indexes on the key columns ([snapshot.Cache]).
//   - Rule engine: identifier format checks whose issues are written as
//     reports and pushed to the rule trace ([rules.Engine]).
//
// # Reload
//
// [Service.Reload] rebuilds both stores from a directory of vendor files:
//
//  1. The column set is taken from the first file with a valid header
//  2. The snapshot cache is cleared and the version table recreated
//  3. Files load concurrently, bounded by the configured worker count
//  4. Each file appends to the version store in batches and pipelines
//     the same rows into the cache; the two writes are independent
//  5. Per-file failures are collected in the [Summary]
//
// Only one reload runs at a time; a second caller waits for the
// [ReloadLimiter] and then fails with [ErrReloadBusy].
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - STORE001-STORE003: Not found, version store down, cache down
//   - FILE001-FILE003: Input directory and file format problems
//   - VAL001-VAL005: Identifier, date and search argument problems
//   - RUN001-RUN002: Reload busy, cancelled requests
package core
