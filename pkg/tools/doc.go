// Package tools defines the Tool contract the turn engine's tool loop
// calls into, and Toolset, the per-route view of the registered tools.
//
// Tools come from providers: built-in functions (see builtins) and
// remote MCP servers (see mcp). The registry subpackage aggregates
// providers and hands out toolsets by name.
package tools
