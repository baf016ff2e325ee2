// Package tasks keeps the client's view of the server-side task pipeline consistent with server truth.
//
// # Core Operations
//
// [Registry] owns the task collection and exposes:
//
//  1. [Registry.Refresh] : fetch every task and replace the collection in one step
//     - on failure the previous collection stays readable and the error is returned and recorded
//     - refreshes that finish after [Registry.Clear] are discarded
//
//  2. [Registry.Start] / [Registry.Stop] : the 30 second refresh cadence built on the poll package
//
//  3. [Registry.FetchDetail] : on-demand task detail with steps and progress, never merged back
//
//  4. [Registry.RetryStep] and [Registry.TriggerStage] : commands forwarded to the server without touching
//     local state
//
// # Views
//
// [Filter], [Counts] and [Pager] derive list views from a snapshot: six category buckets plus all, fixed
// page size of 10 and 1-indexed pages.
//
// # Progress Reporting
//
// All operations report through an optional [Update] channel. Sends use select with default so a slow
// consumer never stalls a refresh.
//
// # Snapshot Caching
//
// The optional [SnapshotCacher] interface persists every successful refresh for offline reads.
package tasks
