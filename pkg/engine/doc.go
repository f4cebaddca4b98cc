// Package engine implements the turn orchestration pipeline for homebrain.
// The Engine struct implements transport.TurnRunner: each turn passes
// through ingest, routing (with an optional clarification suspend point),
// dispatch to a per-route handler, and finalize. Streaming turns forward
// generator deltas as token events and end with exactly one terminal
// event. State is persisted through a transport.CheckpointStore with
// optimistic versioning.
package engine
