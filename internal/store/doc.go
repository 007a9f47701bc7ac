// Package store persists video records.
//
// Records live in SQLite by default (videos.db under the data directory) or
// in PostgreSQL when store.driver is "postgres". Every write to the
// resolution fields goes through Patch, which applies video.Guard inside a
// single transaction so the webhook, the reconcile job and the API's lazy
// read path all obey the same lifecycle rules.
package store
