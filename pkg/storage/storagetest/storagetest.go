// Package storagetest holds the behavioral suite every checkpoint store
// adapter must pass.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rhuss/homebrain/pkg/api"
	"github.com/rhuss/homebrain/pkg/storage"
	"github.com/rhuss/homebrain/pkg/transport"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) transport.CheckpointStore

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s transport.CheckpointStore)
	}{
		{"RoundTrip", testRoundTrip},
		{"LoadMissing", testLoadMissing},
		{"VersionConflict", testVersionConflict},
		{"Delete", testDelete},
		{"List", testList},
		{"OwnerScoping", testOwnerScoping},
		{"LoadedCopyIsDetached", testLoadedCopyIsDetached},
		{"HealthCheck", testHealthCheck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// SampleState returns a state exercising every persisted field.
func SampleState(threadID string, updated time.Time) *api.ConversationState {
	created := updated.Add(-time.Minute)
	return &api.ConversationState{
		ThreadID: threadID,
		Version:  1,
		Messages: []api.Message{
			api.NewTextMessage(api.RoleSystem, "You answer homelab questions."),
			{
				Role: api.RoleUser,
				Content: []api.ContentPart{
					{Type: api.ContentTypeText, Text: "what time is it "},
					{Type: "image", URL: "https://example.com/clock.png"},
					{Type: api.ContentTypeText, Text: "in UTC?"},
				},
			},
			{
				Role:      api.RoleAssistant,
				Content:   []api.ContentPart{},
				ToolCalls: []api.ToolCall{{ID: "call_1", Name: "get_utc_time", Arguments: "{}"}},
			},
			{
				Role:       api.RoleTool,
				Content:    []api.ContentPart{{Type: api.ContentTypeText, Text: "2026-01-02T03:04:05Z"}},
				ToolCallID: "call_1",
				Name:       "get_utc_time",
			},
			api.NewTextMessage(api.RoleAssistant, "It is 03:04 UTC."),
		},
		Route:            api.RouteHomelab,
		RouteConfidence:  0.8125,
		RouteReason:      "mentions rack",
		NeedsHumanReview: false,
		ToolResults: []api.ToolResultRecord{
			{CallID: "call_1", Name: "get_utc_time", Output: "2026-01-02T03:04:05Z"},
		},
		Pending: &api.PendingClarification{
			Prompt:       "Quick clarification so I route you correctly:",
			Options:      api.Routes(),
			OriginalText: "what time is it",
			CreatedAt:    updated,
		},
		FinalAnswer:       "It is 03:04 UTC.",
		FinalMessageCount: 5,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}
}

func baseTime() time.Time {
	return time.Date(2026, 3, 14, 15, 9, 26, 535897000, time.UTC)
}

func testRoundTrip(t *testing.T, s transport.CheckpointStore) {
	ctx := context.Background()
	want := SampleState(api.NewThreadID(), baseTime())

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, want.ThreadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got: %+v\nwant: %+v", got, want)
	}

	next := got.Clone()
	next.Version = 2
	next.Pending = nil
	next.ToolResults = nil
	next.Messages = append(next.Messages, api.NewTextMessage(api.RoleUser, "thanks"))
	if err := s.Save(ctx, next); err != nil {
		t.Fatalf("Save v2: %v", err)
	}
	got, err = s.Load(ctx, want.ThreadID)
	if err != nil {
		t.Fatalf("Load v2: %v", err)
	}
	if !reflect.DeepEqual(got, next) {
		t.Errorf("round trip v2 mismatch:\n got: %+v\nwant: %+v", got, next)
	}
}

func testLoadMissing(t *testing.T, s transport.CheckpointStore) {
	_, err := s.Load(context.Background(), api.NewThreadID())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load missing = %v, want ErrNotFound", err)
	}
}

func testVersionConflict(t *testing.T, s transport.CheckpointStore) {
	ctx := context.Background()
	st := SampleState(api.NewThreadID(), baseTime())

	st.Version = 2
	if err := s.Save(ctx, st); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("first save with version 2 = %v, want ErrConflict", err)
	}

	st.Version = 1
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	if err := s.Save(ctx, st); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("stale save = %v, want ErrConflict", err)
	}
	st.Version = 3
	if err := s.Save(ctx, st); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("skipping save = %v, want ErrConflict", err)
	}
	st.Version = 2
	if err := s.Save(ctx, st); err != nil {
		t.Errorf("Save v2: %v", err)
	}
}

func testDelete(t *testing.T, s transport.CheckpointStore) {
	ctx := context.Background()
	st := SampleState(api.NewThreadID(), baseTime())
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(ctx, st.ThreadID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, st.ThreadID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, st.ThreadID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func testList(t *testing.T, s transport.CheckpointStore) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		st := SampleState(fmt.Sprintf("00000000-0000-4000-8000-00000000000%d", i), baseTime().Add(time.Duration(i)*time.Hour))
		if err := s.Save(ctx, st); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
		ids = append(ids, st.ThreadID)
	}

	list, err := s.List(ctx, transport.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.Object != "list" {
		t.Errorf("Object = %q, want list", list.Object)
	}
	if len(list.Data) != 3 {
		t.Fatalf("len(Data) = %d, want 3", len(list.Data))
	}
	if list.Data[0].ThreadID != ids[2] || list.Data[2].ThreadID != ids[0] {
		t.Errorf("default order not newest first: %+v", list.Data)
	}
	if !list.Data[0].Suspended || list.Data[0].MessageCount != 5 || list.Data[0].Route != api.RouteHomelab {
		t.Errorf("summary fields wrong: %+v", list.Data[0])
	}

	asc, err := s.List(ctx, transport.ListOptions{Limit: 2, Order: "asc"})
	if err != nil {
		t.Fatalf("List asc: %v", err)
	}
	if len(asc.Data) != 2 || asc.Data[0].ThreadID != ids[0] || asc.Data[1].ThreadID != ids[1] {
		t.Errorf("asc limited list = %+v", asc.Data)
	}
}

func testOwnerScoping(t *testing.T, s transport.CheckpointStore) {
	alice := storage.SetOwner(context.Background(), "alice")
	bob := storage.SetOwner(context.Background(), "bob")

	st := SampleState(api.NewThreadID(), baseTime())
	if err := s.Save(alice, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Load(bob, st.ThreadID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Load as other owner = %v, want ErrNotFound", err)
	}
	if err := s.Delete(bob, st.ThreadID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete as other owner = %v, want ErrNotFound", err)
	}
	list, err := s.List(bob, transport.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list.Data) != 0 {
		t.Errorf("other owner sees %d threads, want 0", len(list.Data))
	}
	if _, err := s.Load(alice, st.ThreadID); err != nil {
		t.Errorf("Load as owner: %v", err)
	}
	if _, err := s.Load(context.Background(), st.ThreadID); err != nil {
		t.Errorf("Load unscoped: %v", err)
	}
}

func testLoadedCopyIsDetached(t *testing.T, s transport.CheckpointStore) {
	ctx := context.Background()
	st := SampleState(api.NewThreadID(), baseTime())
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st.Messages[1].Content[0].Text = "mutated after save"

	got, err := s.Load(ctx, st.ThreadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Messages[1].Content[0].Text != "what time is it " {
		t.Errorf("store shares memory with caller: %q", got.Messages[1].Content[0].Text)
	}
	got.Messages = append(got.Messages[:0], api.NewTextMessage(api.RoleUser, "x"))

	again, err := s.Load(ctx, st.ThreadID)
	if err != nil {
		t.Fatalf("Load again: %v", err)
	}
	if len(again.Messages) != 5 {
		t.Errorf("len(Messages) = %d after caller mutation, want 5", len(again.Messages))
	}
}

func testHealthCheck(t *testing.T, s transport.CheckpointStore) {
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
