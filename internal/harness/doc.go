// Package harness orchestrates checkpointed task runs over a session.
//
// Each run is one invocation: the harness selects a phase from durable
// state (initializer for a fresh session, task iteration otherwise),
// executes it against the memory backend and turn executor, and always
// leaves exactly one terminal checkpoint and one progress entry behind.
// Failures are terminal for the run; retry budget belongs to the caller.
package harness
