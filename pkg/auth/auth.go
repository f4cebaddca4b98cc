package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is the vote an authenticator casts for a request.
type AuthDecision int

const (
	// Yes means the credentials are valid. The chain stops here.
	Yes AuthDecision = iota

	// No means credentials were presented but are invalid. The chain stops
	// and the request is rejected.
	No

	// Abstain means the authenticator does not handle this kind of
	// credential. The chain moves on.
	Abstain
)

// AuthResult carries the outcome of an authentication attempt.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity // set only when Decision == Yes
	Err      error     // set only when Decision == No
}

// Identity is an authenticated caller.
type Identity struct {
	// Subject uniquely identifies the caller and owns its threads.
	Subject string

	// Scopes lists the scopes granted to the caller.
	Scopes []string

	// Metadata carries authenticator-specific claims.
	Metadata map[string]string
}

// HasScope reports whether the identity was granted scope.
func (id *Identity) HasScope(scope string) bool {
	if id == nil {
		return false
	}
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Authenticator examines request credentials and casts a vote.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AnonymousSubject is the subject assigned when every authenticator abstains
// and the chain accepts by default.
const AnonymousSubject = "anonymous"

// AuthChain evaluates authenticators in order.
type AuthChain struct {
	Authenticators []Authenticator

	// DefaultDecision applies when all authenticators abstain. Yes admits
	// the caller as AnonymousSubject.
	DefaultDecision AuthDecision
}

// Authenticate runs the chain and stops at the first Yes or No.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	if c.DefaultDecision == Yes {
		return AuthResult{
			Decision: Yes,
			Identity: &Identity{Subject: AnonymousSubject},
		}
	}
	return AuthResult{Decision: No, Err: ErrUnauthenticated}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// ok is false when the header is missing or uses another scheme.
func BearerToken(r *http.Request) (token string, ok bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}
