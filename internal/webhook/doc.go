// Package webhook applies the provider's "asset ready" notifications.
//
// Notifications arrive over HTTP (Handler) or, optionally, an AMQP queue
// (Consumer). Both feed Reconciler.HandleNotification, which warms the
// resolution cache and patches matching records through the same guard the
// resolver path uses, so replays and races with interactive resolution
// converge on one end state.
package webhook
