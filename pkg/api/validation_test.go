package api

import "testing"

func TestValidateChatRequest(t *testing.T) {
	cfg := ValidationConfig{MaxMessageBytes: 8}
	tests := []struct {
		name      string
		req       ChatRequest
		wantParam string
	}{
		{"new thread", ChatRequest{Message: "hi"}, ""},
		{"existing thread", ChatRequest{ThreadID: NewThreadID(), Message: "hi"}, ""},
		{"bad thread id", ChatRequest{ThreadID: "not-a-uuid", Message: "hi"}, "thread_id"},
		{"too long", ChatRequest{Message: "0123456789"}, "message"},
		{"empty left to engine", ChatRequest{Message: "   "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatRequest(&tt.req, cfg)
			if tt.wantParam == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Param != tt.wantParam {
				t.Fatalf("error = %v, want param %q", err, tt.wantParam)
			}
		})
	}
}

func TestValidateResumeRequest(t *testing.T) {
	if err := ValidateResumeRequest(&ResumeRequest{Choice: "homelab"}); err == nil || err.Param != "thread_id" {
		t.Errorf("missing thread_id: got %v", err)
	}
	if err := ValidateResumeRequest(&ResumeRequest{ThreadID: NewThreadID()}); err != nil {
		t.Errorf("empty choice should resolve later, got %v", err)
	}
}

func TestNewThreadIDIsValid(t *testing.T) {
	id := NewThreadID()
	if !ValidateThreadID(id) {
		t.Errorf("NewThreadID() = %q, want valid UUID", id)
	}
	if id == NewThreadID() {
		t.Error("NewThreadID() returned duplicate ids")
	}
}
