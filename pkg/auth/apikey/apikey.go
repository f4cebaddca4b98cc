// Package apikey authenticates bearer tokens against a static set of API
// keys. Keys are held only as SHA-256 digests and compared in constant time.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rhuss/homebrain/pkg/auth"
)

// Key is a configured API key and the caller it identifies.
type Key struct {
	Key     string
	Subject string
	Scopes  []string
}

type entry struct {
	digest [32]byte
	id     auth.Identity
}

// Authenticator validates bearer tokens against configured keys.
type Authenticator struct {
	entries []entry
}

// New hashes keys up front; plaintext keys are not retained.
func New(keys []Key) *Authenticator {
	a := &Authenticator{}
	for _, k := range keys {
		a.entries = append(a.entries, entry{
			digest: sha256.Sum256([]byte(k.Key)),
			id:     auth.Identity{Subject: k.Subject, Scopes: k.Scopes},
		})
	}
	return a
}

// Authenticate abstains without a bearer token, so a JWT authenticator later
// in the chain still gets a chance. An unknown key is rejected.
func (a *Authenticator) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	token, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	digest := sha256.Sum256([]byte(token))
	for _, e := range a.entries {
		if subtle.ConstantTimeCompare(digest[:], e.digest[:]) == 1 {
			id := e.id
			return auth.AuthResult{Decision: auth.Yes, Identity: &id}
		}
	}

	// Unknown tokens may be JWTs; let the next authenticator decide.
	if looksLikeJWT(token) {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	return auth.AuthResult{Decision: auth.No, Err: auth.ErrUnauthenticated}
}

func looksLikeJWT(token string) bool {
	dots := 0
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			dots++
		}
	}
	return dots == 2
}
