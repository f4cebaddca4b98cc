package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rhuss/homebrain/pkg/tools"
)

// Client wraps an MCP SDK session for a single server.
type Client struct {
	cfg     ServerConfig
	session *mcp.ClientSession
}

// NewClient creates a Client for cfg. Call Connect to establish the session.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect performs the protocol handshake using a transport built from
// the server configuration.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over transport. A nil
// transport is built from the server configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	client := mcp.NewClient(
		&mcp.Implementation{Name: "homebrain", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient, err := buildHTTPClient(c.cfg)
	if err != nil {
		return nil, err
	}

	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// ListTools returns the server's tools adapted to tools.Tool.
func (c *Client) ListTools(ctx context.Context) ([]tools.Tool, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var out []tools.Tool
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		schema, err := inputSchema(tool)
		if err != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
		}
		out = append(out, &remoteTool{
			client:      c,
			name:        tool.Name,
			description: tool.Description,
			schema:      schema,
		})
	}
	return out, nil
}

// CallTool invokes name with JSON arguments and returns the joined text
// content. A result flagged IsError is returned as an error carrying that
// text.
func (c *Client) CallTool(ctx context.Context, name, arguments string) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if strings.TrimSpace(arguments) != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments JSON: %w", err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("MCP tool call %q on %q: %w", name, c.cfg.Name, err)
	}

	text := resultText(result)
	if result.IsError {
		return "", errors.New(text)
	}
	return text, nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

func inputSchema(t *mcp.Tool) (map[string]any, error) {
	if t.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}, nil
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshaling input schema: %w", err)
	}
	var schema map[string]any
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("decoding input schema: %w", err)
	}
	return schema, nil
}

func resultText(result *mcp.CallToolResult) string {
	var b strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// remoteTool is one tool on an MCP server.
type remoteTool struct {
	client      *Client
	name        string
	description string
	schema      map[string]any
}

var _ tools.Tool = (*remoteTool)(nil)

func (t *remoteTool) Name() string               { return t.name }
func (t *remoteTool) Description() string        { return t.description }
func (t *remoteTool) Parameters() map[string]any { return t.schema }

func (t *remoteTool) Call(ctx context.Context, args string) (string, error) {
	return t.client.CallTool(ctx, t.name, args)
}
