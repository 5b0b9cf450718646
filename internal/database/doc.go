// Package database is the clip catalog's persistent store, a single SQLite
// file holding:
//   - clips, keyed by a UUID and unique by absolute path
//   - tags and collections, many-to-many with clips
//   - smart folders, whose rule payload is stored opaquely
//   - derived artifact caches (embeddings, waveforms), one row per clip
//   - app_meta, a key/value table carrying the schema version and the
//     persisted watch directory list
//
// The schema is versioned. Initialize applies each additive migration newer
// than the recorded version in its own transaction and is safe to call any
// number of times. Foreign keys are enforced, so deleting a clip, tag or
// collection cascades to every association and artifact row.
//
// All access goes through one connection behind a RWMutex. Bulk mutations
// run in a single transaction and never become partially visible.
package database
