// Package config reads vidresolve's TOML configuration.
//
// Load applies defaults, expands ~ in paths, fills provider credentials from
// VIDRESOLVE_PROVIDER_TOKEN_ID and VIDRESOLVE_PROVIDER_TOKEN_SECRET when the
// file leaves them empty, and validates the result. PlaybackRules turns the
// [playback] section into the rules the classifier applies.
package config
