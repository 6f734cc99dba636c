// Package progress keeps aggregated counters of the cache messages published
// by workers and processed by the tracker. The broker owns one Progress
// instance and returns its Snapshot as part of the cache statistics.
package progress
