// Package memory persists session state across runs: the session
// manifest, the feature checklist, progress entries, run checkpoints,
// and the conversation transcript.
//
// Three backends share one contract: an in-memory map, a filesystem
// store with atomic JSON writes, and SQLite. Initialization is
// idempotent and each write is independently atomic.
package memory
