// Package repositories implements SQLite persistence for data derived from provider instances.
//
// Nothing stored here is authoritative. Credentials live in the credential store and the gallery index is
// rebuilt from listings, so every table can be dropped and refilled.
//
// Key Implementations:
//   - [ThumbnailRepository] : thumbnail bytes keyed by (provider type, instance index, path, size)
//   - [SnapshotRepository] : per-instance bookkeeping for the last completed listing
//
// Rows are addressed by instance index, so both repositories follow the same renumbering rule as the
// credential store: when an instance is removed its rows are purged and every higher index of the same
// provider type shifts down by one. [ShiftInstances] performs that shift inside a transaction.
package repositories
