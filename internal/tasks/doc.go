// Package tasks runs long gallery operations with progress reporting.
//
// # Refresh
//
// [Refresher.Run] relists every provider instance into the gallery index. Listings are started at a
// bounded rate and run on a small worker pool; a failed instance is recorded in the report and never
// stops the others.
//
// # Progress Reporting
//
// Operations report through a [ProgressUpdate] channel. Sends use select with default so a slow or
// missing reader never blocks the work.
//
// The finished [models.RefreshReport] may also be written to disk through the formatter package.
package tasks
