package provider

import (
	"encoding/json"
	"strings"

	"github.com/minhyannv/airproject/pkg/apperr"
	"github.com/minhyannv/airproject/pkg/conversation"
	"github.com/tidwall/gjson"
)

// decodeArguments parses the raw JSON arguments of a tool call. Blank input
// means no arguments; anything other than a JSON object is malformed.
func decodeArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}, nil
	}
	if !gjson.Valid(raw) {
		return nil, apperr.New(apperr.MalformedResponse, "tool arguments are not valid JSON: %s", abbreviate(raw))
	}
	result := gjson.Parse(raw)
	if !result.IsObject() {
		return nil, apperr.New(apperr.MalformedResponse, "tool arguments must be a JSON object, got %s", result.Type)
	}
	args, ok := result.Value().(map[string]any)
	if !ok {
		return nil, apperr.New(apperr.MalformedResponse, "tool arguments must be a JSON object")
	}
	return args, nil
}

// encodeArguments renders arguments for the provider wire format.
func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// newToolCall normalizes a provider tool call. Providers that omit the call
// ID get a generated one so the result can still be correlated.
func newToolCall(id, name, rawArgs string) (conversation.ToolCall, error) {
	if strings.TrimSpace(name) == "" {
		return conversation.ToolCall{}, apperr.New(apperr.MalformedResponse, "tool call %q has no name", id)
	}
	args, err := decodeArguments(rawArgs)
	if err != nil {
		return conversation.ToolCall{}, err
	}
	if id == "" {
		id = conversation.NewID()
	}
	return conversation.ToolCall{ID: id, Name: name, Arguments: args}, nil
}

func abbreviate(s string) string {
	const limit = 120
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
