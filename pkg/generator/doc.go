// Package generator abstracts the language model behind the turn engine.
//
// A [Generator] produces an assistant reply (optionally requesting tool
// calls) from a message history, streams the same reply as text deltas,
// and decodes structured output against a JSON schema for the router.
//
// Adapters live in subpackages: openai (any Chat Completions compatible
// endpoint) and anthropic (Messages API). [Instrument] wraps any adapter
// with metrics and tracing.
package generator
