// Package coordinator fans sync work out to source adapters and routes the
// resulting record groups into the core store.
//
// # Routing
//
// Each adapter returns batches of records grouped by mc_version. Every group
// becomes a merge job keyed by (core_type, mc_version). Jobs with the same key
// go through one FIFO lane and are merged strictly one after another; jobs
// with different keys touch disjoint tables and merge in parallel, up to the
// configured merge concurrency.
//
// # Failure isolation
//
// An adapter that returns an error or panics produces an *AdapterFailure in
// the run report. A merge that fails produces a *MergeFailure. Neither stops
// sibling adapters or other merges. Merges whose context ends before they
// start are abandoned and leave no trace in storage.
//
// # Scheduling
//
// Run performs one sync cycle. Schedule repeats Run on an interval. Retention,
// when enabled, runs after every adapter of a cycle has finished.
package coordinator
