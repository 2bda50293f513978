// Package stores caches retrieved build settings in SQLite so repeated
// queries against an unchanged project skip xcodebuild. Entries are keyed by
// the invocation fingerprint and action, expire after a TTL and can be
// invalidated per project or per directory.
package stores
