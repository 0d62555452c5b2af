// Package chat executes conversational turns: it prepares the message
// window from the stored transcript, calls the model provider, drives the
// bounded tool-call loop, and persists the resulting exchange.
package chat
