package mcpserver

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// jsonArg decodes a JSON tool argument. Agents send either a JSON string or
// an already-decoded object, so both are accepted.
func jsonArg(args map[string]any, key string, target any) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return false, nil
	}
	var data []byte
	switch t := v.(type) {
	case string:
		if t == "" {
			return false, nil
		}
		data = []byte(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return false, fmt.Errorf("%s: %w", key, err)
		}
		data = b
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return true, nil
}

func boolPtr(v bool) *bool { return &v }
