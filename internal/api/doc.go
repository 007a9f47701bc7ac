// Package api defines wire-format types and the video service behind the HTTP
// API and the CLI. It translates stored records, resolver results, cache
// entries and reconcile summaries into transport-friendly DTOs.
//
// # Key Types
//
// Video: transport representation of a record with its reference kind and
// re-upload flag, plus the lazy resolution when one was attempted.
//
// VideoService: create, describe, list and resolve. Describe resolves pending
// records on read and writes the resulting patch in a detached goroutine.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums (lifecycle status, reference kind,
// resolution outcome) are exposed as lowercase strings. Timestamps use
// RFC3339 with milliseconds.
package api
