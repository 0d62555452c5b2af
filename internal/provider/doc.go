// Package provider abstracts model providers behind a single interface.
//
// A Provider turns a Request (messages, tool definitions, sampling knobs)
// into a Response, either in one shot via Complete or incrementally via
// Stream. Adapters for Anthropic and OpenAI are included; tests use
// in-process fakes.
package provider
