// Package resolver turns stored video references into playback results.
//
// Resolve classifies the reference, answers playback ids locally, and for
// upload and asset ids consults the resolution cache before asking the
// provider. At most one provider call per key is in flight: the caller that
// wins the cache reservation performs it on a detached context and every
// other caller waits for the winner's result.
package resolver
