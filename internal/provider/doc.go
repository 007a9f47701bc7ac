// Package provider is the HTTP boundary to the video provider's asset and
// upload lookup API.
//
// Each Fetch call makes exactly one outbound request, gated by a token-bucket
// limiter. Failures are folded into two sentinels: ErrNotFound for HTTP 404
// and ErrUnavailable for everything else (transport errors, timeouts, 429,
// 5xx, undecodable bodies). Callers map those to resolution outcomes.
// Non-200 replies arrive as *StatusError, which matches ErrUnavailable and
// carries the status code.
package provider
