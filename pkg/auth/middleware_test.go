package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/observability"
	"github.com/rhuss/homebrain/pkg/storage"
)

func serve(mw func(http.Handler) http.Handler, method, path string, next http.HandlerFunc) *httptest.ResponseRecorder {
	if next == nil {
		next = func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }
	}
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *api.APIError {
	t.Helper()
	var body api.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestMiddlewareBypass(t *testing.T) {
	mw := Middleware(&AuthChain{DefaultDecision: No}, nil, DefaultBypassEndpoints)
	for _, path := range []string{"/api/health", "/metrics"} {
		if rec := serve(mw, http.MethodGet, path, nil); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	before := testutil.ToFloat64(observability.AuthRejectedTotal.WithLabelValues("unauthenticated"))

	mw := Middleware(&AuthChain{DefaultDecision: No}, nil, DefaultBypassEndpoints)
	called := false
	rec := serve(mw, http.MethodPost, "/api/chat", func(http.ResponseWriter, *http.Request) { called = true })

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Error("handler ran for an unauthenticated request")
	}
	if e := decodeError(t, rec); e.Type != api.ErrorTypeUnauthenticated {
		t.Errorf("error type = %q, want unauthenticated", e.Type)
	}
	after := testutil.ToFloat64(observability.AuthRejectedTotal.WithLabelValues("unauthenticated"))
	if after != before+1 {
		t.Errorf("rejection counter = %v, want %v", after, before+1)
	}
}

func TestMiddlewareScopesStorageToSubject(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{yes("alice")}, DefaultDecision: No}
	mw := Middleware(chain, nil, DefaultBypassEndpoints)

	var owner, subject string
	rec := serve(mw, http.MethodPost, "/api/chat", func(w http.ResponseWriter, r *http.Request) {
		owner = storage.GetOwner(r.Context())
		if id := IdentityFromContext(r.Context()); id != nil {
			subject = id.Subject
		}
		w.WriteHeader(http.StatusOK)
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if owner != "alice" || subject != "alice" {
		t.Errorf("owner = %q, subject = %q, want alice", owner, subject)
	}
}

func TestMiddlewareEmptySubject(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{yes("")}}
	rec := serve(Middleware(chain, nil, nil), http.MethodGet, "/api/threads", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMiddlewareRateLimit(t *testing.T) {
	chain := &AuthChain{Authenticators: []Authenticator{yes("alice")}}
	mw := Middleware(chain, NewInProcessLimiter(1), DefaultBypassEndpoints)

	if rec := serve(mw, http.MethodPost, "/api/chat", nil); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}
	rec := serve(mw, http.MethodPost, "/api/chat", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
	if e := decodeError(t, rec); e.Type != api.ErrorTypeRateLimited {
		t.Errorf("error type = %q, want rate_limited", e.Type)
	}
}
