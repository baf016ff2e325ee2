// Package repositories implements the local SQLite cache.
//
// The cache is optional: the remote server stays the source of truth and nothing here is read back into
// the in-memory task registry. It exists so the CLI can answer `status` and `tasks list --cached` while
// offline.
//
// Key Implementations:
//   - [IdentityRepository] : the signed-in account, replaced on login and cleared on logout
//   - [SnapshotRepository] : task lists of recent refreshes, pruned to a fixed retention
//
// The schema lives in shared/sql and is applied by [shared.RunMigrations].
package repositories
