package tools

import (
	"context"
)

// ToolKind classifies how a tool is hosted and executed.
type ToolKind int

const (
	// ToolKindBuiltin is a function executed in-process.
	ToolKindBuiltin ToolKind = iota

	// ToolKindMCP is a tool hosted on a Model Context Protocol server.
	ToolKindMCP
)

func (k ToolKind) String() string {
	switch k {
	case ToolKindBuiltin:
		return "builtin"
	case ToolKindMCP:
		return "mcp"
	default:
		return "unknown"
	}
}

// Tool is a named function the generator may request.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON schema of the arguments object.
	Parameters() map[string]any

	// Call runs the tool with JSON-encoded arguments and returns its text
	// output. A returned error is reported back to the model as text; it
	// does not abort the turn.
	Call(ctx context.Context, args string) (string, error)
}

// Provider contributes a set of tools of one kind.
type Provider interface {
	// Name returns a unique identifier for this provider (e.g., "clock").
	Name() string

	Kind() ToolKind

	Tools() []Tool

	// Close releases any resources held by the provider.
	Close() error
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	// CallID matches the originating tool call id.
	CallID string

	Name string

	// Output is the tool output, or the error text when IsError is set.
	Output string

	IsError bool
}
