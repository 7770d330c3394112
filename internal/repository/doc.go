// Package repository defines durable storage for the device registry.
//
// The registry keeps its table in memory and persists by writing a full
// snapshot after every mutation; there is no incremental log. Two
// implementations exist:
//
// # jsonfile
//
// A single JSON document written to a temporary file in the target
// directory, synced, then renamed over the old snapshot. A missing file
// loads as an empty registry.
//
// # sqlite
//
// A SQLite database where each save deletes and reinserts every row inside
// one transaction, so readers see either the old or the new snapshot.
//
// Both keep the saved order, which the registry relies on to give
// consumers stable positions across restarts.
package repository
