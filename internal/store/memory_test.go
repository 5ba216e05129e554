package store

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestMemoryStoreCreateAndLoad(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &models.Conversation{Model: "claude-sonnet-4-20250514"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected generated ID")
	}

	loaded, err := s.LoadConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadConversation: %v", err)
	}
	if loaded.Model != conv.Model {
		t.Fatalf("Model = %q, want %q", loaded.Model, conv.Model)
	}

	if _, err := s.LoadConversation(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreAppendMessagePreservesOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &models.Conversation{}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		msg := models.Message{Role: models.RoleUser, Blocks: []models.Block{models.TextBlock{Text: "msg"}}}
		if err := s.AppendMessage(ctx, conv.ID, msg); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	loaded, err := s.LoadConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(loaded.Messages))
	}
}

func TestMemoryStoreListOrdersByMostRecentlyUpdated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := &models.Conversation{}
	second := &models.Conversation{}
	if err := s.CreateConversation(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateConversation(ctx, second); err != nil {
		t.Fatal(err)
	}
	// Touch first so it becomes the most recently updated.
	if err := s.AppendMessage(ctx, first.ID, models.Message{Role: models.RoleUser}); err != nil {
		t.Fatal(err)
	}

	metas, err := s.ListConversations(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(metas) != 2 || metas[0].ID != first.ID {
		t.Fatalf("expected first conversation first, got %+v", metas)
	}
}

func TestMemoryStoreSearchMatchesMessageText(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &models.Conversation{}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendMessage(ctx, conv.ID, models.Message{
		Role:   models.RoleUser,
		Blocks: []models.Block{models.TextBlock{Text: "find the needle"}},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.SearchConversations(ctx, "needle")
	if err != nil {
		t.Fatalf("SearchConversations: %v", err)
	}
	if len(results) != 1 || results[0].ID != conv.ID {
		t.Fatalf("expected one match, got %+v", results)
	}

	none, err := s.SearchConversations(ctx, "haystack")
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no matches, got %+v", none)
	}
}

func TestMemoryStorePlanRoundtrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &models.Conversation{}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	if err := s.SavePlan(ctx, conv.ID, "# Plan\n- step one"); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
	plan, err := s.LoadPlan(ctx, conv.ID)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if plan != "# Plan\n- step one" {
		t.Fatalf("unexpected plan content: %q", plan)
	}

	if _, err := s.LoadPlan(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreDeleteRemovesConversationAndPlan(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	conv := &models.Conversation{}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if err := s.SavePlan(ctx, conv.ID, "plan"); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, conv.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.LoadConversation(ctx, conv.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.LoadPlan(ctx, conv.ID); err != ErrNotFound {
		t.Fatalf("expected plan ErrNotFound after delete, got %v", err)
	}
}
