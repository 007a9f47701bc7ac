// Package services defines shared utilities consumed by the resolver, webhook,
// reconcile, and API layers.
//
// Key responsibilities:
//   - Context helpers that stamp record IDs, operation names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the mapping from those
//     markers to HTTP status codes used by the daemon API.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the service.
package services
