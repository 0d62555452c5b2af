package tooling

import (
	"encoding/json"
	"fmt"
)

// ParseObject decodes a tool-call argument payload into a generic map.
// An empty payload decodes to an empty map.
func ParseObject(argsJSON string) (map[string]any, error) {
	if argsJSON == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &out); err != nil {
		return nil, &Error{Kind: ErrInvalidArguments,
			Message: "arguments are not a JSON object", Err: err}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// RequiredString extracts a mandatory string field from parsed arguments.
func RequiredString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", &Error{Kind: ErrInvalidArguments,
			Message: fmt.Sprintf("missing required argument %q", key)}
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Kind: ErrInvalidArguments,
			Message: fmt.Sprintf("argument %q must be a string", key)}
	}
	if s == "" {
		return "", &Error{Kind: ErrInvalidArguments,
			Message: fmt.Sprintf("argument %q cannot be empty", key)}
	}
	return s, nil
}

// OptionalString extracts an optional string field, returning fallback
// when absent.
func OptionalString(args map[string]any, key, fallback string) (string, error) {
	v, ok := args[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{Kind: ErrInvalidArguments,
			Message: fmt.Sprintf("argument %q must be a string", key)}
	}
	return s, nil
}
