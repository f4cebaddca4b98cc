package auth

import (
	"log/slog"
	"net/http"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/observability"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

// DefaultBypassEndpoints lists paths served without authentication.
var DefaultBypassEndpoints = []string{"/api/health", "/metrics"}

// Middleware authenticates every request not in bypassEndpoints, applies
// the optional limiter, and scopes storage to the caller's subject.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				observability.AuthRejectedTotal.WithLabelValues("unauthenticated").Inc()
				transport.WriteAPIError(w, api.NewUnauthenticatedError("authentication required"))
				return
			}

			id := result.Identity
			if id.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject)
					observability.AuthRejectedTotal.WithLabelValues("rate_limited").Inc()
					transport.WriteAPIError(w, &api.APIError{
						Type:    api.ErrorTypeRateLimited,
						Message: "rate limit exceeded",
					})
					return
				}
			}

			slog.Debug("authentication succeeded", "subject", id.Subject, "path", r.URL.Path)

			ctx := SetIdentity(r.Context(), id)
			ctx = storage.SetOwner(ctx, id.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
