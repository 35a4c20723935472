package service

import (
	"context"
	"strings"
	"time"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/llm"
	"chatbot-rag-go/pkg/log"
)

// SentinelSummary 是标题尚未生成时使用的占位摘要。
const SentinelSummary = "New Conversation"

// 默认提示词，可被配置文件覆盖。
const (
	defaultSubstantiveRules = `You evaluate whether conversation content is substantive enough to deserve a meaningful title.

Answer 'YES' when the content contains a specific question, discusses a concrete topic, asks for advice or technical help, or carries information worth summarizing.
Answer 'NO' for plain greetings, simple thanks, short confirmations, or messages too short to be informative.

Reply with exactly 'YES' or 'NO' and nothing else.`

	defaultTitleRules = `You write concise, informative titles. Produce one short title (at most 7 words) that best represents the conversation topic.

Guidelines:
- Use specific, descriptive words
- Avoid generic words like "conversation" or "chat"
- Single line, no quotes, no extra formatting
- Output the title only, with no explanation`
)

// SummaryService 实现对话标题的两状态机：
// UNSET（摘要为空或等于占位值）与 TITLED（已有生成的标题）。
// 一个对话至多被命名一次，已命名的标题永不覆盖。
type SummaryService interface {
	// IsTitled 是区分占位摘要与真实标题的唯一判定。
	IsTitled(summary string) bool
	// Advance 推进状态机并返回当前（可能刚持久化的）摘要。
	// 所有模型调用失败都被吞掉，对话最多退回占位值，绝不向调用方抛错。
	Advance(ctx context.Context, conversation *model.Conversation, latestUserMessage string) string
}

// summaryService 是 SummaryService 接口的实现。
type summaryService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	llmClient        llm.Client
}

// NewSummaryService 创建一个新的 SummaryService 实例。
func NewSummaryService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	llmClient llm.Client,
) SummaryService {
	return &summaryService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		llmClient:        llmClient,
	}
}

// IsTitled 判断摘要是否为真实标题：非空且不等于占位值（忽略大小写）。
func (s *summaryService) IsTitled(summary string) bool {
	trimmed := strings.TrimSpace(summary)
	return trimmed != "" && !strings.EqualFold(trimmed, SentinelSummary)
}

// Advance 执行一次状态机推进。
func (s *summaryService) Advance(ctx context.Context, conversation *model.Conversation, latestUserMessage string) string {
	// TITLED：一次性命名策略，直接返回既有标题
	if s.IsTitled(conversation.Summary) {
		return conversation.Summary
	}

	// 第一阶段：判断最新消息是否有实质内容
	if !s.classify(ctx, latestUserMessage) {
		return s.commitSentinelIfUnset(conversation)
	}

	// 第二阶段：用完整历史再确认一次，避免单条消息以偏概全
	messages, err := s.messageRepo.FindRecentByConversation(conversation.ID, config.Conf.RAG.HistoryClassifyLimit)
	if err != nil {
		log.Errorf("[SummaryService] 获取对话历史失败, conversation: %s, error: %v", conversation.ID, err)
		return s.commitSentinelIfUnset(conversation)
	}
	chatLines := joinMessages(reverseMessages(messages))

	if !s.classify(ctx, chatLines) {
		return s.commitSentinelIfUnset(conversation)
	}

	// 第三阶段：生成标题
	title, err := s.generateTitle(ctx, chatLines)
	if err != nil || title == "" {
		if err != nil {
			log.Warnf("[SummaryService] 生成标题失败, conversation: %s, error: %v", conversation.ID, err)
		}
		return s.commitSentinelIfUnset(conversation)
	}

	if err := s.conversationRepo.UpdateSummary(conversation.ID, title); err != nil {
		log.Errorf("[SummaryService] 持久化标题失败, conversation: %s, error: %v", conversation.ID, err)
		return s.commitSentinelIfUnset(conversation)
	}
	conversation.Summary = title
	return title
}

// commitSentinelIfUnset 只在摘要真正为空时写入占位值，已是占位值时不重复提交。
func (s *summaryService) commitSentinelIfUnset(conversation *model.Conversation) string {
	if strings.TrimSpace(conversation.Summary) != "" {
		return conversation.Summary
	}
	if err := s.conversationRepo.UpdateSummary(conversation.ID, SentinelSummary); err != nil {
		log.Errorf("[SummaryService] 持久化占位摘要失败, conversation: %s, error: %v", conversation.ID, err)
		return conversation.Summary
	}
	conversation.Summary = SentinelSummary
	return SentinelSummary
}

// classify 调用模型做二分类，失败一律按"无实质内容"处理（fail closed）。
func (s *summaryService) classify(ctx context.Context, content string) bool {
	rules := config.Conf.AI.Prompt.SubstantiveRules
	if rules == "" {
		rules = defaultSubstantiveRules
	}

	classifyCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.AI.Timeout.ClassifySeconds)*time.Second)
	defer cancel()

	result, err := s.llmClient.ChatCompletion(classifyCtx, []llm.Message{
		{Role: "system", Content: rules},
		{Role: "user", Content: "Evaluate whether the following content is substantive enough to summarize:\n\n" + content},
	}, s.summaryParams())
	if err != nil {
		log.Warnf("[SummaryService] 实质性分类失败: %v", err)
		return false
	}
	return strings.ToUpper(strings.TrimSpace(result)) == "YES"
}

// generateTitle 请求一个不超过 7 个词的单行标题。
func (s *summaryService) generateTitle(ctx context.Context, chatContent string) (string, error) {
	rules := config.Conf.AI.Prompt.TitleRules
	if rules == "" {
		rules = defaultTitleRules
	}

	titleCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.AI.Timeout.TitleSeconds)*time.Second)
	defer cancel()

	title, err := s.llmClient.ChatCompletion(titleCtx, []llm.Message{
		{Role: "system", Content: rules},
		{Role: "user", Content: "Write a title for the following conversation:\n\n" + chatContent},
	}, s.summaryParams())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ReplaceAll(title, "\n", " ")), nil
}

// summaryParams 返回分类与标题调用使用的生成参数。
func (s *summaryService) summaryParams() *llm.GenerationParams {
	params := &llm.GenerationParams{Model: config.Conf.LLM.Summary.Model}
	if config.Conf.LLM.Summary.Temperature != 0 {
		t := config.Conf.LLM.Summary.Temperature
		params.Temperature = &t
	}
	return params
}

// joinMessages 把消息拼接为 "role: content" 片段，用 " | " 分隔。
func joinMessages(messages []model.Message) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.SenderRole+": "+msg.Content)
	}
	return strings.Join(parts, " | ")
}
