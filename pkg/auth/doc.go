// Package auth provides optional bearer authentication for the homebrain
// HTTP API.
//
// Authenticators vote Yes (identity found), No (credentials invalid) or
// Abstain (credential type not handled). An AuthChain asks each in order and
// falls back to a default decision when every authenticator abstains.
//
// Auth runs as HTTP middleware in front of the adapter. An accepted request
// carries its Identity in the context, and the identity subject becomes the
// storage owner so threads stay private to the caller who created them.
package auth
