// Command vidresolve resolves stored video references into streaming URLs,
// repairs stale records and runs the webhook-receiving daemon.
//
// Read commands accept --json for machine-readable output; otherwise they
// render tables, with a plain style when stdout is not a terminal.
package main
