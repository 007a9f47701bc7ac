// Package resolution holds the typed outcome of resolving a video reference
// and the process-wide cache of those outcomes.
//
// The Cache de-duplicates concurrent resolutions with Reserve/Await, keeps
// resolved and terminally failed results forever, lets pending and
// provider_unavailable results lapse after short TTLs, and optionally
// snapshots its permanent entries to disk so a restart does not re-ask the
// provider about references it already settled.
package resolution
