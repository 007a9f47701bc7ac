// Package identifier classifies the video references stored in records.
//
// Records hold upload ids, asset ids and playback ids in the same field with
// no discriminator. Classify turns such a string into a tagged Identifier from
// its shape alone (streaming host, prefix, length, character set) so that the
// resolver, webhook reconciler and batch job never inspect raw strings again.
//
// Rules also owns the canonical playback URL format
// (https://<streaming-host>/<playback-id>.m3u8) and the helpers used to spot
// and take apart legacy URLs.
package identifier
