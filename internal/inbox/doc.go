// Package inbox persists discovery results and scan sessions in SQLite.
//
// The inbox is the host-side record of what the discovery Machines have
// found. A result is keyed by its UID, so re-announcing a device after a
// restart updates last_seen and seen_count instead of adding a row.
//
// Two entry points share the same tables:
//
//   - Repository (SQLiteRepository) for the API: list, get and delete
//     results, and list past scan sessions.
//   - Recorder, a discovery.Sink and discovery.Observer wired into every
//     Machine. It writes through prepared statements.
//
// Tables are created by the discovery_inbox migration.
package inbox
