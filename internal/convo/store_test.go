package convo

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreConversationLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateConversation("c1", true, time.Now()); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Idempotent on duplicate IDs.
	if err := s.CreateConversation("c1", true, time.Now()); err != nil {
		t.Fatalf("duplicate create: %v", err)
	}
	if err := s.SetAssignedAgent("c1", "a1"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := s.CloseConversation("c1"); err != nil {
		t.Fatalf("close: %v", err)
	}

	var open bool
	var agent string
	err := s.DB().QueryRow(`SELECT open, assigned_agent FROM conversations WHERE id = 'c1'`).
		Scan(&open, &agent)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if open || agent != "" {
		t.Fatalf("closed conversation should clear assignment, open=%v agent=%q", open, agent)
	}
}

func TestStoreMessages(t *testing.T) {
	s := newTestStore(t)
	s.CreateConversation("c1", false, time.Now())

	msgs := []Message{
		{Role: RoleUser, Text: "my invoice is wrong", Timestamp: time.Now()},
		{Role: RoleBot, Text: "let me check", Timestamp: time.Now(),
			Metadata: map[string]any{"confidence": 0.8}},
		{Role: RoleUser, Text: "hurry up", Timestamp: time.Now()},
	}
	for _, m := range msgs {
		if err := s.AppendMessage("c1", m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := s.RecentMessages("c1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 messages, got %d", len(got))
	}
	// Trailing window, oldest first.
	if got[0].Text != "let me check" || got[1].Text != "hurry up" {
		t.Fatalf("wrong window or order: %+v", got)
	}
	if got[0].Metadata["confidence"] != 0.8 {
		t.Fatalf("metadata lost: %+v", got[0].Metadata)
	}
}

func TestStoreEvents(t *testing.T) {
	s := newTestStore(t)
	s.CreateConversation("c1", false, time.Now())

	score := 7.5
	events := []AgentEvent{
		{Kind: EventFrustration, Description: "scored 7.5", Score: &score, Timestamp: time.Now()},
		{Kind: EventRouting, Description: "assigned to a1", Timestamp: time.Now()},
	}
	for _, ev := range events {
		if err := s.AppendEvent("c1", ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	got, err := s.Events("c1", 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 events, got %d", len(got))
	}
	// Most recent first.
	if got[0].Kind != EventRouting || got[1].Kind != EventFrustration {
		t.Fatalf("wrong order: %+v", got)
	}
	if got[1].Score == nil || *got[1].Score != 7.5 {
		t.Fatalf("score lost: %+v", got[1])
	}
	if got[0].Score != nil {
		t.Fatalf("nil score should round-trip as nil: %+v", got[0])
	}
}
