// Package tooling provides the tool runtime: tool definitions, a
// registry, and a runtime that executes model-issued tool calls.
package tooling
