package storage

import "context"

type ownerKey struct{}

// SetOwner scopes all store operations on ctx to the given owner.
func SetOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// GetOwner returns the owner scoping ctx, or the empty string when threads
// are shared (single-user mode).
func GetOwner(ctx context.Context) string {
	if v, ok := ctx.Value(ownerKey{}).(string); ok {
		return v
	}
	return ""
}

// Visible reports whether a thread saved by stored is visible to requester.
// An empty requester sees every thread.
func Visible(requester, stored string) bool {
	return requester == "" || requester == stored
}
