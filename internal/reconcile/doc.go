// Package reconcile repairs stored video records in bulk.
//
// Each record that is not already healthy is re-resolved and patched through
// the shared guard. Healthy ready records and frozen terminal records are
// never re-resolved, and a failure on one record is counted rather than
// aborting the batch. RunAll scans the whole store under a file lock so only
// one pass runs per data directory.
package reconcile
