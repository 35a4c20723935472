package service

import (
	"context"
	"errors"
	"testing"

	"chatbot-rag-go/internal/model"

	"gorm.io/gorm"
)

func newConversationFixture(llmClient *fakeLLMClient) (ConversationService, *fakeConversationRepo, *fakeMessageRepo, *fakeMemoryRepo) {
	convRepo := newFakeConversationRepo()
	msgRepo := &fakeMessageRepo{}
	memRepo := &fakeMemoryRepo{}
	summarizer := NewSummaryService(convRepo, msgRepo, llmClient)
	return NewConversationService(convRepo, msgRepo, memRepo, summarizer), convRepo, msgRepo, memRepo
}

func TestConversationDetailEnforcesOwnership(t *testing.T) {
	svc, convRepo, msgRepo, _ := newConversationFixture(&fakeLLMClient{})
	conversation := seedConversation(convRepo, "")
	_ = msgRepo.Create(&model.Message{ConversationID: conversation.ID, SenderRole: model.SenderRoleUser, Content: "hello"})
	_ = msgRepo.Create(&model.Message{ConversationID: conversation.ID, SenderRole: model.SenderRoleAssistant, Content: "hi"})

	detail, err := svc.Detail("user-1", conversation.ID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if len(detail.Messages) != 2 {
		t.Fatalf("消息数 = %d, want 2", len(detail.Messages))
	}

	if _, err := svc.Detail("intruder", conversation.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("他人访问应按不存在处理, 实际 err = %v", err)
	}
}

func TestConversationRename(t *testing.T) {
	svc, convRepo, _, _ := newConversationFixture(&fakeLLMClient{})
	conversation := seedConversation(convRepo, SentinelSummary)

	renamed, err := svc.Rename("user-1", conversation.ID, "My Custom Title")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Summary != "My Custom Title" {
		t.Fatalf("Summary = %q", renamed.Summary)
	}

	stored, _ := convRepo.FindByID(conversation.ID)
	if stored.Summary != "My Custom Title" {
		t.Fatalf("持久化的摘要 = %q", stored.Summary)
	}
}

func TestConversationDeleteCleansMemories(t *testing.T) {
	svc, convRepo, _, memRepo := newConversationFixture(&fakeLLMClient{})
	conversation := seedConversation(convRepo, "")

	// 记忆清理失败不阻塞删除
	memRepo.searchErr = nil
	if err := svc.Delete(context.Background(), "user-1", conversation.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := convRepo.FindByID(conversation.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatal("对话应已删除")
	}

	// 他人删除：按不存在处理
	other := seedConversation(convRepo, "")
	if err := svc.Delete(context.Background(), "intruder", other.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("他人删除应失败, 实际 err = %v", err)
	}
}

func TestForceSummaryUsesLatestUserMessage(t *testing.T) {
	// 分类两次 YES 后生成标题
	svc, convRepo, msgRepo, _ := newConversationFixture(sequencedLLM(t, "YES", "YES", "Database Indexing Basics"))
	conversation := seedConversation(convRepo, "")
	_ = msgRepo.Create(&model.Message{ConversationID: conversation.ID, SenderRole: model.SenderRoleUser, Content: "how do database indexes work?"})
	_ = msgRepo.Create(&model.Message{ConversationID: conversation.ID, SenderRole: model.SenderRoleAssistant, Content: "they speed up lookups"})

	summary, err := svc.ForceSummary(context.Background(), "user-1", conversation.ID)
	if err != nil {
		t.Fatalf("ForceSummary: %v", err)
	}
	if summary != "Database Indexing Basics" {
		t.Fatalf("summary = %q", summary)
	}

	stored, _ := convRepo.FindByID(conversation.ID)
	if stored.Summary != "Database Indexing Basics" {
		t.Fatalf("持久化的摘要 = %q", stored.Summary)
	}
}
