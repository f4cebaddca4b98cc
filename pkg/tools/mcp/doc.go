// Package mcp exposes tools hosted on MCP (Model Context Protocol) servers
// to the turn engine's tool loop.
//
// The package wraps the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Each configured server is
// connected once at startup, its tools are listed and cached, and every
// remote tool is adapted to tools.Tool so routes can bind it by name just
// like a built-in.
//
// Servers are reached over SSE or streamable HTTP, optionally with static
// headers and OAuth 2.0 client-credentials tokens.
package mcp
