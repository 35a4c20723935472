package service

import (
	"context"
	"errors"
	"testing"

	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/pkg/llm"
)

// sequencedLLM 依次返回预设回复，超出时报错。
func sequencedLLM(t *testing.T, replies ...string) *fakeLLMClient {
	t.Helper()
	i := 0
	return &fakeLLMClient{
		completeFn: func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
			if i >= len(replies) {
				t.Fatalf("模型被调用 %d 次，超出预期的 %d 次", i+1, len(replies))
			}
			reply := replies[i]
			i++
			return reply, nil
		},
	}
}

func newSummaryFixture(llmClient *fakeLLMClient) (SummaryService, *fakeConversationRepo, *fakeMessageRepo) {
	convRepo := newFakeConversationRepo()
	msgRepo := &fakeMessageRepo{}
	return NewSummaryService(convRepo, msgRepo, llmClient), convRepo, msgRepo
}

func seedConversation(convRepo *fakeConversationRepo, summary string) *model.Conversation {
	conversation := &model.Conversation{UserID: "user-1", Summary: summary}
	_ = convRepo.Create(conversation)
	return conversation
}

func TestIsTitled(t *testing.T) {
	svc, _, _ := newSummaryFixture(&fakeLLMClient{})

	cases := []struct {
		summary string
		want    bool
	}{
		{"", false},
		{"   ", false},
		{SentinelSummary, false},
		{"new conversation", false},
		{"  New Conversation  ", false},
		{"Go Channels Explained", true},
		{"New Conversation Tips", true},
	}
	for _, tc := range cases {
		if got := svc.IsTitled(tc.summary); got != tc.want {
			t.Errorf("IsTitled(%q) = %v, want %v", tc.summary, got, tc.want)
		}
	}
}

func TestAdvanceTitledConversationIsUntouched(t *testing.T) {
	llmClient := &fakeLLMClient{
		completeFn: func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
			t.Fatal("已命名的对话不应再调用模型")
			return "", nil
		},
	}
	svc, convRepo, _ := newSummaryFixture(llmClient)
	conversation := seedConversation(convRepo, "Existing Title")

	got := svc.Advance(context.Background(), conversation, "hello again")
	if got != "Existing Title" {
		t.Fatalf("Advance = %q, want %q", got, "Existing Title")
	}
	if len(convRepo.summaryUpdates) != 0 {
		t.Fatalf("不应有摘要更新，实际发生 %d 次", len(convRepo.summaryUpdates))
	}
}

func TestAdvanceNonSubstantiveCommitsSentinelOnce(t *testing.T) {
	svc, convRepo, _ := newSummaryFixture(sequencedLLM(t, "NO", "NO"))
	conversation := seedConversation(convRepo, "")

	if got := svc.Advance(context.Background(), conversation, "hi"); got != SentinelSummary {
		t.Fatalf("第一次 Advance = %q, want %q", got, SentinelSummary)
	}
	if len(convRepo.summaryUpdates) != 1 || convRepo.summaryUpdates[0] != SentinelSummary {
		t.Fatalf("占位摘要应恰好写入一次，实际更新: %v", convRepo.summaryUpdates)
	}

	// 第二次推进：摘要已是占位值，不重复提交
	if got := svc.Advance(context.Background(), conversation, "thanks"); got != SentinelSummary {
		t.Fatalf("第二次 Advance = %q, want %q", got, SentinelSummary)
	}
	if len(convRepo.summaryUpdates) != 1 {
		t.Fatalf("占位摘要被重复提交: %v", convRepo.summaryUpdates)
	}
}

func TestAdvanceSubstantiveGeneratesTitle(t *testing.T) {
	// 顺序：最新消息分类 YES -> 历史分类 YES -> 标题生成
	svc, convRepo, msgRepo := newSummaryFixture(sequencedLLM(t, "YES", "yes", "Go Channels Explained\n"))
	conversation := seedConversation(convRepo, SentinelSummary)
	_ = msgRepo.Create(&model.Message{ConversationID: conversation.ID, SenderRole: model.SenderRoleUser, Content: "how do go channels work?"})

	got := svc.Advance(context.Background(), conversation, "how do go channels work?")
	if got != "Go Channels Explained" {
		t.Fatalf("Advance = %q, want %q", got, "Go Channels Explained")
	}
	if conversation.Summary != "Go Channels Explained" {
		t.Fatalf("内存中的对话摘要未同步: %q", conversation.Summary)
	}

	stored, err := convRepo.FindByID(conversation.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.Summary != "Go Channels Explained" {
		t.Fatalf("持久化的摘要 = %q, want %q", stored.Summary, "Go Channels Explained")
	}

	// 命名后再次推进：不再有任何模型调用（sequencedLLM 超额会直接失败）
	if got := svc.Advance(context.Background(), conversation, "another question"); got != "Go Channels Explained" {
		t.Fatalf("命名后的 Advance = %q, want 原标题", got)
	}
}

func TestAdvanceHistoryNotSubstantiveKeepsSentinel(t *testing.T) {
	// 最新消息看起来有实质内容，但完整历史被判为不可摘要
	svc, convRepo, _ := newSummaryFixture(sequencedLLM(t, "YES", "NO"))
	conversation := seedConversation(convRepo, "")

	if got := svc.Advance(context.Background(), conversation, "ok then tell me"); got != SentinelSummary {
		t.Fatalf("Advance = %q, want %q", got, SentinelSummary)
	}
}

func TestAdvanceClassifyErrorFailsClosed(t *testing.T) {
	llmClient := &fakeLLMClient{
		completeFn: func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
			return "", errors.New("provider unavailable")
		},
	}
	svc, convRepo, _ := newSummaryFixture(llmClient)
	conversation := seedConversation(convRepo, "")

	if got := svc.Advance(context.Background(), conversation, "substantial question about databases"); got != SentinelSummary {
		t.Fatalf("分类失败时 Advance = %q, want %q", got, SentinelSummary)
	}
}

func TestAdvanceTitleFailureLeavesSentinel(t *testing.T) {
	i := 0
	llmClient := &fakeLLMClient{
		completeFn: func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
			i++
			if i <= 2 {
				return "YES", nil
			}
			return "", errors.New("title generation failed")
		},
	}
	svc, convRepo, _ := newSummaryFixture(llmClient)
	conversation := seedConversation(convRepo, "")

	if got := svc.Advance(context.Background(), conversation, "explain kafka consumer groups"); got != SentinelSummary {
		t.Fatalf("标题失败时 Advance = %q, want %q", got, SentinelSummary)
	}
	if conversation.Summary != SentinelSummary {
		t.Fatalf("对话应退回占位摘要，实际 %q", conversation.Summary)
	}
}
