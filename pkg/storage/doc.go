// Package storage holds what the checkpoint store adapters share: sentinel
// errors, thread ownership carried on the context, and the optimistic
// version check every adapter applies on save.
//
// The adapters (memory, sqlite, postgres) implement transport.CheckpointStore.
package storage
