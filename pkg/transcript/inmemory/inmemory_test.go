package inmemory_test

import (
	"context"
	"testing"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/barekit/agrilab/pkg/transcript/inmemory"
)

func TestAppendAndLoad(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()

	turns := []llm.Message{
		{Role: llm.RoleAssistant, Content: "Welcome"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Search failed", Error: true},
	}
	for _, turn := range turns {
		if err := store.Append(ctx, "session-1", turn); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	got, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != len(turns) {
		t.Fatalf("expected %d turns, got %d", len(turns), len(got))
	}
	for i, turn := range turns {
		if got[i].Role != turn.Role || got[i].Content != turn.Content || got[i].Error != turn.Error {
			t.Errorf("turn %d mismatch: %+v", i, got[i])
		}
	}
}

func TestLoadReturnsSnapshot(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()

	_ = store.Append(ctx, "session-1", llm.Message{Role: llm.RoleAssistant, Content: "Welcome"})
	snapshot, _ := store.Load(ctx, "session-1")

	_ = store.Append(ctx, "session-1", llm.Message{Role: llm.RoleUser, Content: "Hello"})
	if len(snapshot) != 1 {
		t.Errorf("snapshot grew with later appends: %d turns", len(snapshot))
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()

	_ = store.Append(ctx, "session-1", llm.Message{Role: llm.RoleUser, Content: "one"})
	_ = store.Append(ctx, "session-2", llm.Message{Role: llm.RoleUser, Content: "two"})

	got, _ := store.Load(ctx, "session-1")
	if len(got) != 1 || got[0].Content != "one" {
		t.Errorf("session-1 transcript polluted: %+v", got)
	}
}

func TestReset(t *testing.T) {
	store := inmemory.New()
	ctx := context.Background()

	_ = store.Append(ctx, "session-1", llm.Message{Role: llm.RoleUser, Content: "one"})
	if err := store.Reset(ctx, "session-1"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	got, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty transcript after reset, got %d turns", len(got))
	}
}
