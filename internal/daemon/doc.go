// Package daemon coordinates the long-running vidresolve process.
//
// It takes the components built by package app and runs them under a single
// lifecycle with flock-based locking to prevent multiple instances: the HTTP
// API (records, resolution, cache, reconcile trigger, metrics and the
// provider webhook), the optional AMQP notification consumer, and the
// periodic reconcile pass.
//
// Keep orchestration logic here: resolution, reconciliation and persistence
// live in their own packages while the daemon focuses on startup, shutdown,
// and routing.
package daemon
