package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/llm"
	"chatbot-rag-go/pkg/log"

	"gorm.io/gorm"
)

// 生成失败时返回给用户的固定文案。
const (
	timeoutNotice    = "AI response timeout. Please try again."
	errorNoticePrefix = "AI error: "
	streamErrorPrefix = "[STREAM ERROR] "
)

// 默认系统提示与上下文前缀，可被配置文件覆盖。
const (
	defaultChatRules = `You are a smart, friendly and helpful AI assistant. You give accurate, informative answers, use the information from uploaded documents when it is relevant, remember important facts from the user's past conversations, and explain complex topics in a clear way. When you are unsure about something, say so honestly. When you use information from a document, mention the source politely.`

	defaultDocumentPrefix = "Relevant information from documents:"
	defaultMemoryPrefix   = "Remember these relevant exchanges from the past:"
)

// ChatRequest 是聊天接口的请求体。
type ChatRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	Message        string `json:"message" binding:"required"`
	ConversationID string `json:"conversation_id"`
	Timezone       string `json:"timezone"`
}

// ChatResponse 是同步聊天接口的响应体。
type ChatResponse struct {
	ConversationID string `json:"conversation_id"`
	Response       string `json:"response"`
	Summary        string `json:"summary"`
}

// ChatService 是 RAG 编排核心：组装上下文、调用模型、落库并触发
// 标题生成与后台记忆索引。
type ChatService interface {
	// ResolveConversation 复用或新建对话。只有当 conversationID 非空、存在
	// 且归属于 userID 时才复用，否则创建新对话。
	ResolveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error)
	// GenerateReply 执行同步聊天：生成超时或模型错误会转成用户可见的
	// 文案而不是错误，此时不持久化 assistant 消息。
	GenerateReply(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// StreamReply 执行流式聊天：对话必须已由 ResolveConversation 解析，
	// 每个非空增量通过 onFragment 交给传输层。模型中途出错时发送单个
	// "[STREAM ERROR] ..." 片段后结束，任何错误都不会从这里抛出。
	StreamReply(ctx context.Context, conversation *model.Conversation, req ChatRequest, onFragment func(fragment string) error)
}

// chatService 是 ChatService 接口的实现。
type chatService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	retrieval        RetrievalService
	summarizer       SummaryService
	indexer          IndexerService
	llmClient        llm.Client
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	retrieval RetrievalService,
	summarizer SummaryService,
	indexer IndexerService,
	llmClient llm.Client,
) ChatService {
	return &chatService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		retrieval:        retrieval,
		summarizer:       summarizer,
		indexer:          indexer,
		llmClient:        llmClient,
	}
}

// ResolveConversation 复用或新建对话。
func (s *chatService) ResolveConversation(ctx context.Context, userID, conversationID string) (*model.Conversation, error) {
	if conversationID != "" {
		conversation, err := s.conversationRepo.FindByIDAndUser(conversationID, userID)
		if err == nil {
			return conversation, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		// 不存在或归属不匹配时静默降级为新建
	}

	conversation := &model.Conversation{UserID: userID}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// GenerateReply 执行同步聊天路径。
func (s *chatService) GenerateReply(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	// 1. 解析对话：对话 id 是响应契约的一部分，必须先行落库
	conversation, err := s.ResolveConversation(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	// 2. 立即持久化用户消息，即使后续模型调用失败它也必须保留
	userMessage := &model.Message{
		ConversationID: conversation.ID,
		SenderRole:     model.SenderRoleUser,
		Content:        req.Message,
		Timezone:       req.Timezone,
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		return nil, err
	}

	// 3. 检索上下文并组装提示
	pctx := s.retrieval.GatherContext(ctx, req.UserID, conversation.ID, req.Message, config.Conf.RAG.HistorySize)
	messages := composePrompt(pctx, req.Message)

	// 4. 限时调用模型；超时与错误转成文案，不持久化 assistant 消息
	genCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.AI.Timeout.GenerationSeconds)*time.Second)
	reply, err := s.llmClient.ChatCompletion(genCtx, messages, nil)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warnf("[ChatService] 模型调用超时, conversation: %s", conversation.ID)
			reply = timeoutNotice
		} else {
			log.Errorf("[ChatService] 模型调用失败, conversation: %s, error: %v", conversation.ID, err)
			reply = errorNoticePrefix + err.Error()
		}
	} else {
		assistantMessage := &model.Message{
			ConversationID: conversation.ID,
			SenderRole:     model.SenderRoleAssistant,
			Content:        reply,
			Timezone:       req.Timezone,
		}
		if err := s.messageRepo.Create(assistantMessage); err != nil {
			log.Errorf("[ChatService] 持久化 assistant 消息失败, conversation: %s, error: %v", conversation.ID, err)
		}
	}

	// 5. 同步推进标题状态机，结果随响应返回
	summary := s.summarizer.Advance(ctx, conversation, req.Message)

	// 6. 后台索引与响应解耦，失败不可见
	s.indexer.IndexMessageAsync(userMessage, conversation)

	return &ChatResponse{
		ConversationID: conversation.ID,
		Response:       reply,
		Summary:        summary,
	}, nil
}

// StreamReply 执行流式聊天路径。
func (s *chatService) StreamReply(ctx context.Context, conversation *model.Conversation, req ChatRequest, onFragment func(fragment string) error) {
	// 用户消息先于第一个输出字节落库
	userMessage := &model.Message{
		ConversationID: conversation.ID,
		SenderRole:     model.SenderRoleUser,
		Content:        req.Message,
		Timezone:       req.Timezone,
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		log.Errorf("[ChatService] 持久化用户消息失败, conversation: %s, error: %v", conversation.ID, err)
		_ = onFragment(streamErrorPrefix + err.Error())
		return
	}

	// 流式路径用更小的历史窗口换取更快的首 token
	pctx := s.retrieval.GatherContext(ctx, req.UserID, conversation.ID, req.Message, config.Conf.RAG.StreamHistorySize)
	messages := composePrompt(pctx, req.Message)

	streamCtx, cancel := context.WithTimeout(ctx, time.Duration(config.Conf.AI.Timeout.StreamSeconds)*time.Second)
	defer cancel()

	var accumulated strings.Builder
	var writeErr error
	err := s.llmClient.StreamChatCompletion(streamCtx, messages, nil, func(delta string) error {
		// 空的中间片段（如终止片段）直接跳过
		if delta == "" {
			return nil
		}
		accumulated.WriteString(delta)
		if werr := onFragment(delta); werr != nil {
			writeErr = werr
			return werr
		}
		return nil
	})

	if err != nil && writeErr == nil {
		// 模型中途出错：发出单个错误片段后正常收尾，不影响已累积文本的持久化
		log.Errorf("[ChatService] 流式模型调用失败, conversation: %s, error: %v", conversation.ID, err)
		_ = onFragment(streamErrorPrefix + err.Error())
	}
	if writeErr != nil {
		log.Warnf("[ChatService] 流式输出中断, conversation: %s, error: %v", conversation.ID, writeErr)
	}

	// 持久化发生在最后一个片段之后；标题推进发生在持久化之后
	if accumulated.Len() > 0 {
		assistantMessage := &model.Message{
			ConversationID: conversation.ID,
			SenderRole:     model.SenderRoleAssistant,
			Content:        accumulated.String(),
			Timezone:       req.Timezone,
		}
		if err := s.messageRepo.Create(assistantMessage); err != nil {
			log.Errorf("[ChatService] 持久化 assistant 消息失败, conversation: %s, error: %v", conversation.ID, err)
		} else {
			// 请求上下文可能即将结束，标题推进用独立上下文
			s.summarizer.Advance(context.Background(), conversation, req.Message)
		}
	}

	s.indexer.IndexMessageAsync(userMessage, conversation)
}

// composePrompt 把检索结果组装成模型消息：文档上下文、记忆上下文、
// 聊天历史与新消息合并为单条 user 消息，规则放在 system 消息。
func composePrompt(pctx PromptContext, userMessage string) []llm.Message {
	rules := config.Conf.AI.Prompt.Rules
	if rules == "" {
		rules = defaultChatRules
	}
	documentPrefix := config.Conf.AI.Prompt.DocumentPrefix
	if documentPrefix == "" {
		documentPrefix = defaultDocumentPrefix
	}
	memoryPrefix := config.Conf.AI.Prompt.MemoryPrefix
	if memoryPrefix == "" {
		memoryPrefix = defaultMemoryPrefix
	}

	var sb strings.Builder
	if len(pctx.Chunks) > 0 {
		sb.WriteString(documentPrefix + "\n")
		for _, chunk := range pctx.Chunks {
			sb.WriteString("- " + chunk + "\n")
		}
		sb.WriteString("\n")
	}
	if len(pctx.Memories) > 0 {
		sb.WriteString(memoryPrefix + "\n")
		for _, memory := range pctx.Memories {
			sb.WriteString("- " + memory + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Current conversation history:\n")
	for _, msg := range pctx.History {
		sb.WriteString(msg.SenderRole + ": " + msg.Content + "\n")
	}
	sb.WriteString("\nUser message: " + userMessage)

	return []llm.Message{
		{Role: "system", Content: rules},
		{Role: "user", Content: sb.String()},
	}
}
