package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubAuthn struct {
	result AuthResult
	calls  int
}

func (s *stubAuthn) Authenticate(_ context.Context, _ *http.Request) AuthResult {
	s.calls++
	return s.result
}

func yes(subject string) *stubAuthn {
	return &stubAuthn{result: AuthResult{Decision: Yes, Identity: &Identity{Subject: subject}}}
}

func no() *stubAuthn {
	return &stubAuthn{result: AuthResult{Decision: No, Err: errors.New("bad credentials")}}
}

func abstain() *stubAuthn {
	return &stubAuthn{result: AuthResult{Decision: Abstain}}
}

func TestAuthChain(t *testing.T) {
	tests := []struct {
		name        string
		authns      []*stubAuthn
		defaultVote AuthDecision
		want        AuthDecision
		wantSubject string
		wantCalls   []int
	}{
		{"first yes stops", []*stubAuthn{yes("alice"), yes("bob")}, No, Yes, "alice", []int{1, 0}},
		{"first no stops", []*stubAuthn{no(), yes("bob")}, Yes, No, "", []int{1, 0}},
		{"abstain then yes", []*stubAuthn{abstain(), yes("bob")}, No, Yes, "bob", []int{1, 1}},
		{"all abstain rejects", []*stubAuthn{abstain(), abstain()}, No, No, "", []int{1, 1}},
		{"all abstain admits anonymous", []*stubAuthn{abstain()}, Yes, Yes, AnonymousSubject, []int{1}},
		{"empty chain rejects", nil, No, No, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := &AuthChain{DefaultDecision: tt.defaultVote}
			for _, a := range tt.authns {
				chain.Authenticators = append(chain.Authenticators, a)
			}

			result := chain.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
			if result.Decision != tt.want {
				t.Fatalf("Decision = %d, want %d", result.Decision, tt.want)
			}
			if tt.want == Yes && result.Identity.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", result.Identity.Subject, tt.wantSubject)
			}
			if tt.want == No && result.Err == nil {
				t.Error("expected an error on rejection")
			}
			for i, want := range tt.wantCalls {
				if got := tt.authns[i].calls; got != want {
					t.Errorf("authenticator %d calls = %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		wantOK bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer ", "", true},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, ok := BearerToken(r)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIdentityContextAndScopes(t *testing.T) {
	if IdentityFromContext(context.Background()) != nil {
		t.Fatal("expected nil identity on empty context")
	}

	id := &Identity{Subject: "alice", Scopes: []string{"chat"}}
	got := IdentityFromContext(SetIdentity(context.Background(), id))
	if got != id {
		t.Fatalf("IdentityFromContext = %v, want %v", got, id)
	}
	if !got.HasScope("chat") || got.HasScope("admin") {
		t.Errorf("HasScope mismatch for %v", got.Scopes)
	}

	var nilID *Identity
	if nilID.HasScope("chat") {
		t.Error("nil identity should have no scopes")
	}
}
