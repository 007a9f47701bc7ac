// Package preflight provides readiness checks for the services and paths
// vidresolve depends on.
//
// The CLI "vidresolve check" command runs RunAll and prints one line per
// check. Optional integrations are only checked when configured.
package preflight
