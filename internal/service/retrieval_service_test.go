package service

import (
	"context"
	"errors"
	"testing"

	"chatbot-rag-go/internal/model"
)

func TestGatherContextHistoryIsChronological(t *testing.T) {
	msgRepo := &fakeMessageRepo{}
	for _, content := range []string{"first", "second", "third", "fourth"} {
		_ = msgRepo.Create(&model.Message{ConversationID: "conv-1", SenderRole: model.SenderRoleUser, Content: content})
	}
	svc := NewRetrievalService(msgRepo, &fakeMemoryRepo{}, &fakeDocumentRepo{}, &fakeEmbeddingClient{vector: []float32{1}})

	pctx := svc.GatherContext(context.Background(), "user-1", "conv-1", "query", 3)

	if len(pctx.History) != 3 {
		t.Fatalf("历史长度 = %d, want 3", len(pctx.History))
	}
	// 最近 3 条按时间正序
	want := []string{"second", "third", "fourth"}
	for i, msg := range pctx.History {
		if msg.Content != want[i] {
			t.Fatalf("历史顺序异常: 第 %d 条 = %q, want %q", i, msg.Content, want[i])
		}
	}
}

func TestGatherContextEmbeddingFailureDegradesSemanticSearch(t *testing.T) {
	msgRepo := &fakeMessageRepo{}
	_ = msgRepo.Create(&model.Message{ConversationID: "conv-1", SenderRole: model.SenderRoleUser, Content: "hello"})

	memRepo := &fakeMemoryRepo{searchHits: []string{"should not appear"}}
	docRepo := &fakeDocumentRepo{chunkHits: []string{"should not appear"}}
	embedder := &fakeEmbeddingClient{err: errors.New("embedding service down")}
	svc := NewRetrievalService(msgRepo, memRepo, docRepo, embedder)

	pctx := svc.GatherContext(context.Background(), "user-1", "conv-1", "query", 10)

	if len(pctx.History) != 1 {
		t.Fatalf("向量化失败不应影响历史: %v", pctx.History)
	}
	if len(pctx.Memories) != 0 || len(pctx.Chunks) != 0 {
		t.Fatalf("向量化失败时两路语义检索都应为空: memories=%v chunks=%v", pctx.Memories, pctx.Chunks)
	}
}

func TestGatherContextSearchFailuresAreIndependent(t *testing.T) {
	memRepo := &fakeMemoryRepo{searchErr: errors.New("memory index unavailable")}
	docRepo := &fakeDocumentRepo{chunkHits: []string{"chunk-a", "chunk-b"}}
	embedder := &fakeEmbeddingClient{vector: []float32{1, 2}}
	svc := NewRetrievalService(&fakeMessageRepo{}, memRepo, docRepo, embedder)

	pctx := svc.GatherContext(context.Background(), "user-1", "conv-1", "query", 10)

	if len(pctx.Memories) != 0 {
		t.Fatalf("记忆检索失败应得到空列表: %v", pctx.Memories)
	}
	if len(pctx.Chunks) != 2 {
		t.Fatalf("文档分块检索应不受影响: %v", pctx.Chunks)
	}
}

func TestGatherContextRespectsTopK(t *testing.T) {
	memRepo := &fakeMemoryRepo{searchHits: []string{"m1", "m2", "m3"}}
	docRepo := &fakeDocumentRepo{chunkHits: []string{"c1", "c2", "c3", "c4", "c5"}}
	embedder := &fakeEmbeddingClient{vector: []float32{1}}
	svc := NewRetrievalService(&fakeMessageRepo{}, memRepo, docRepo, embedder)

	pctx := svc.GatherContext(context.Background(), "user-1", "conv-1", "query", 10)

	if len(pctx.Memories) != 1 {
		t.Fatalf("记忆 top-k = %d, want 1", len(pctx.Memories))
	}
	if len(pctx.Chunks) != 3 {
		t.Fatalf("分块 top-k = %d, want 3", len(pctx.Chunks))
	}
}
