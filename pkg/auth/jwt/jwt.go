// Package jwt authenticates bearer JWTs. Tokens are verified either with a
// shared HMAC secret or against RSA keys published at a JWKS endpoint.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rhuss/homebrain/pkg/auth"
)

// Config holds the JWT authenticator settings. Exactly one of Secret and
// JWKSURL should be set; Secret wins when both are.
type Config struct {
	// Secret verifies HS256/HS384/HS512 tokens.
	Secret string

	// JWKSURL serves the RSA keys for RS256/RS384/RS512 tokens.
	JWKSURL string

	// Issuer and Audience are checked when non-empty.
	Issuer   string
	Audience string

	// UserClaim names the subject claim. Default: "sub".
	UserClaim string

	// ScopesClaim holds a space-separated string or an array. Default: "scope".
	ScopesClaim string

	// CacheTTL bounds how long JWKS keys are reused. Default: 1 hour.
	CacheTTL time.Duration

	// HTTPClient fetches the JWKS. Default: http.DefaultClient.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.UserClaim == "" {
		c.UserClaim = "sub"
	}
	if c.ScopesClaim == "" {
		c.ScopesClaim = "scope"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = time.Hour
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// Authenticator validates JWT bearer tokens.
type Authenticator struct {
	config Config
	jwks   *jwksCache
}

// New creates a JWT authenticator.
func New(cfg Config) *Authenticator {
	cfg.applyDefaults()
	a := &Authenticator{config: cfg}
	if cfg.Secret == "" && cfg.JWKSURL != "" {
		a.jwks = newJWKSCache(cfg.JWKSURL, cfg.CacheTTL, cfg.HTTPClient)
	}
	return a
}

// Authenticate abstains when there is no bearer token and rejects any token
// that fails signature, expiry, issuer, audience or subject checks.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	tokenStr, ok := auth.BearerToken(r)
	if !ok {
		return auth.AuthResult{Decision: auth.Abstain}
	}
	if tokenStr == "" {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("empty bearer token")}
	}

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (any, error) {
		return a.verificationKey(ctx, token)
	}, a.parserOptions()...)
	if err != nil {
		slog.Debug("jwt validation failed", "error", err)
		return auth.AuthResult{Decision: auth.No, Err: fmt.Errorf("invalid JWT: %w", err)}
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return auth.AuthResult{Decision: auth.No, Err: errors.New("invalid JWT claims")}
	}

	subject, _ := claims[a.config.UserClaim].(string)
	if subject == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("JWT missing %q claim", a.config.UserClaim),
		}
	}

	id := &auth.Identity{
		Subject: subject,
		Scopes:  extractScopes(claims, a.config.ScopesClaim),
	}
	if iss, _ := claims["iss"].(string); iss != "" {
		id.Metadata = map[string]string{"issuer": iss}
	}
	return auth.AuthResult{Decision: auth.Yes, Identity: id}
}

func (a *Authenticator) verificationKey(ctx context.Context, token *jwtlib.Token) (any, error) {
	if a.config.Secret != "" {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	}

	if a.jwks == nil {
		return nil, errors.New("no verification key configured")
	}
	if _, ok := token.Method.(*jwtlib.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token missing kid header")
	}
	key, err := a.jwks.getKey(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("jwks key %q: %w", kid, err)
	}
	return key, nil
}

func (a *Authenticator) parserOptions() []jwtlib.ParserOption {
	methods := []string{"RS256", "RS384", "RS512"}
	if a.config.Secret != "" {
		methods = []string{"HS256", "HS384", "HS512"}
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods(methods),
		jwtlib.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwtlib.WithAudience(a.config.Audience))
	}
	return opts
}

func extractScopes(claims jwtlib.MapClaims, key string) []string {
	switch v := claims[key].(type) {
	case string:
		if parts := strings.Fields(v); len(parts) > 0 {
			return parts
		}
	case []any:
		var scopes []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				scopes = append(scopes, s)
			}
		}
		return scopes
	}
	return nil
}
