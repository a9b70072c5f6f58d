package stream

import (
	"context"
	"testing"

	"github.com/deepresearch-go/pipeline/internal/types"
)

func TestMemoryStreamManager_GetStream_Unregistered(t *testing.T) {
	m := NewMemoryStreamManager()
	ctx := context.Background()

	info, err := m.GetStream(ctx, "session-1", "request-1")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if info != nil {
		t.Errorf("GetStream() on unregistered stream = %+v, want nil", info)
	}
}

func TestMemoryStreamManager_RegisterUpdateComplete(t *testing.T) {
	m := NewMemoryStreamManager()
	ctx := context.Background()
	sessionID, requestID := "session-1", "request-1"

	if err := m.RegisterStream(ctx, sessionID, requestID, "what is the capital of France?"); err != nil {
		t.Fatalf("RegisterStream() error = %v", err)
	}

	info, err := m.GetStream(ctx, sessionID, requestID)
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if info == nil {
		t.Fatal("GetStream() after RegisterStream = nil, want non-nil")
	}
	if info.Query != "what is the capital of France?" {
		t.Errorf("Query = %q, want %q", info.Query, "what is the capital of France?")
	}
	if info.Content != "" || info.IsCompleted {
		t.Errorf("freshly registered stream = %+v, want empty content and not completed", info)
	}

	refs := []types.RetrieveItem{{Content: "Paris is the capital of France."}}
	if err := m.UpdateStream(ctx, sessionID, requestID, "Paris", refs); err != nil {
		t.Fatalf("UpdateStream() error = %v", err)
	}
	if err := m.UpdateStream(ctx, sessionID, requestID, " is the capital.", nil); err != nil {
		t.Fatalf("UpdateStream() error = %v", err)
	}

	info, err = m.GetStream(ctx, sessionID, requestID)
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if info.Content != "Paris is the capital." {
		t.Errorf("Content = %q, want %q", info.Content, "Paris is the capital.")
	}
	if len(info.KnowledgeReferences) != 1 || info.KnowledgeReferences[0].Content != refs[0].Content {
		t.Errorf("KnowledgeReferences = %+v, want %+v", info.KnowledgeReferences, refs)
	}
	if info.IsCompleted {
		t.Error("IsCompleted = true before CompleteStream() was called")
	}

	if err := m.CompleteStream(ctx, sessionID, requestID); err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}
	info, err = m.GetStream(ctx, sessionID, requestID)
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if !info.IsCompleted {
		t.Error("IsCompleted = false after CompleteStream()")
	}
	if info.Content != "Paris is the capital." {
		t.Errorf("Content after completion = %q, want unchanged %q", info.Content, "Paris is the capital.")
	}
}

func TestMemoryStreamManager_UpdateUnregisteredStreamIsNoop(t *testing.T) {
	m := NewMemoryStreamManager()
	ctx := context.Background()

	if err := m.UpdateStream(ctx, "ghost-session", "ghost-request", "content", nil); err != nil {
		t.Fatalf("UpdateStream() on unregistered stream error = %v, want nil", err)
	}
	if err := m.CompleteStream(ctx, "ghost-session", "ghost-request"); err != nil {
		t.Fatalf("CompleteStream() on unregistered stream error = %v, want nil", err)
	}

	info, err := m.GetStream(ctx, "ghost-session", "ghost-request")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	if info != nil {
		t.Errorf("GetStream() on never-registered stream = %+v, want nil", info)
	}
}

func TestMemoryStreamManager_IndependentRequestsPerSession(t *testing.T) {
	m := NewMemoryStreamManager()
	ctx := context.Background()
	sessionID := "session-shared"

	if err := m.RegisterStream(ctx, sessionID, "request-a", "query a"); err != nil {
		t.Fatalf("RegisterStream() error = %v", err)
	}
	if err := m.RegisterStream(ctx, sessionID, "request-b", "query b"); err != nil {
		t.Fatalf("RegisterStream() error = %v", err)
	}

	if err := m.UpdateStream(ctx, sessionID, "request-a", "answer a", nil); err != nil {
		t.Fatalf("UpdateStream() error = %v", err)
	}

	infoA, err := m.GetStream(ctx, sessionID, "request-a")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}
	infoB, err := m.GetStream(ctx, sessionID, "request-b")
	if err != nil {
		t.Fatalf("GetStream() error = %v", err)
	}

	if infoA.Content != "answer a" {
		t.Errorf("request-a Content = %q, want %q", infoA.Content, "answer a")
	}
	if infoB.Content != "" {
		t.Errorf("request-b Content = %q, want empty, updates must not leak across requests", infoB.Content)
	}
}
