// Package notifications delivers reconcile alerts via ntfy.
//
// The daemon publishes one message per periodic or API-triggered reconcile
// pass that patched or failed records, plus an alert when a pass cannot run.
// When no topic is configured NewService returns a no-op implementation.
package notifications
