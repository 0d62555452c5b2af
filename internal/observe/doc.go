// Package observe provides ready-made hook implementations: structured
// logging hooks, OTEL metrics hooks, and Safe wrappers that keep a
// faulty hook from ever affecting a run.
package observe
