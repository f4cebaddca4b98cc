package mcp

import (
	"context"
	"log/slog"

	"github.com/rhuss/homebrain/pkg/tools"
)

// Provider exposes the tools of several MCP servers as one tools.Provider.
type Provider struct {
	clients []*Client
	tools   []tools.Tool
}

var _ tools.Provider = (*Provider)(nil)

// Connect dials every configured server and lists its tools. A server that
// cannot be reached is logged and skipped; its tools stay unavailable.
func Connect(ctx context.Context, cfg Config) *Provider {
	p := &Provider{}
	for _, sc := range cfg.Servers {
		c := NewClient(sc)
		if err := c.Connect(ctx); err != nil {
			slog.Error("failed to connect MCP server", "server", sc.Name, "error", err)
			continue
		}
		if err := p.add(ctx, sc.Name, c); err != nil {
			slog.Error("failed to discover tools from MCP server", "server", sc.Name, "error", err)
			_ = c.Close()
		}
	}
	return p
}

// NewProvider builds a provider from already connected clients.
func NewProvider(ctx context.Context, clients ...*Client) (*Provider, error) {
	p := &Provider{}
	for _, c := range clients {
		if err := p.add(ctx, c.cfg.Name, c); err != nil {
			_ = p.Close()
			return nil, err
		}
	}
	return p, nil
}

func (p *Provider) add(ctx context.Context, name string, c *Client) error {
	ts, err := c.ListTools(ctx)
	if err != nil {
		return err
	}
	p.clients = append(p.clients, c)
	p.tools = append(p.tools, ts...)
	slog.Info("discovered MCP tools", "server", name, "count", len(ts))
	return nil
}

func (p *Provider) Name() string         { return "mcp" }
func (p *Provider) Kind() tools.ToolKind { return tools.ToolKindMCP }

// Tools returns the tools of all connected servers in server order.
// Name conflicts are resolved by the registry.
func (p *Provider) Tools() []tools.Tool {
	return append([]tools.Tool(nil), p.tools...)
}

// Close closes all sessions, returning the last error encountered.
func (p *Provider) Close() error {
	var lastErr error
	for _, c := range p.clients {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", c.cfg.Name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}
