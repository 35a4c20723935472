// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/embedding"
	"chatbot-rag-go/pkg/log"
)

// PromptContext 是一次聊天请求检索到的全部上下文。
// 三个列表相互独立，任意一项检索失败都只会得到空列表。
type PromptContext struct {
	// History 按时间正序排列的最近消息。
	History []model.Message
	// Memories 与本次提问语义最相近的历史消息文本。
	Memories []string
	// Chunks 与本次提问语义最相近的知识库分块文本。
	Chunks []string
}

// RetrievalService 接口定义了上下文检索操作。
type RetrievalService interface {
	// GatherContext 为一次提问收集聊天历史、相关记忆与相关文档分块。
	// 检索是尽力而为的增强，任何一路失败都不会让整个请求失败。
	GatherContext(ctx context.Context, userID, conversationID, query string, historyLimit int) PromptContext
}

// retrievalService 是 RetrievalService 接口的实现。
type retrievalService struct {
	messageRepo     repository.MessageRepository
	memoryRepo      repository.MemoryRepository
	documentRepo    repository.DocumentRepository
	embeddingClient embedding.Client
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(
	messageRepo repository.MessageRepository,
	memoryRepo repository.MemoryRepository,
	documentRepo repository.DocumentRepository,
	embeddingClient embedding.Client,
) RetrievalService {
	return &retrievalService{
		messageRepo:     messageRepo,
		memoryRepo:      memoryRepo,
		documentRepo:    documentRepo,
		embeddingClient: embeddingClient,
	}
}

// GatherContext 收集三类上下文。
func (s *retrievalService) GatherContext(ctx context.Context, userID, conversationID, query string, historyLimit int) PromptContext {
	pctx := PromptContext{
		History:  []model.Message{},
		Memories: []string{},
		Chunks:   []string{},
	}

	// 1. 聊天历史：存储按时间倒序返回最近 N 条，这里反转为正序
	messages, err := s.messageRepo.FindRecentByConversation(conversationID, historyLimit)
	if err != nil {
		log.Errorf("[RetrievalService] 获取聊天历史失败, conversation: %s, error: %v", conversationID, err)
	} else {
		pctx.History = reverseMessages(messages)
	}

	// 2. 向量化提问；失败时两路语义检索都退化为空列表
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		log.Errorf("[RetrievalService] 向量化提问失败, error: %v", err)
		return pctx
	}

	// 3. 相关记忆：限定同用户同对话
	memories, err := s.memoryRepo.SearchNearest(ctx, userID, conversationID, queryVector, config.Conf.RAG.MemoryTopK)
	if err != nil {
		log.Errorf("[RetrievalService] 检索相关记忆失败, error: %v", err)
	} else {
		pctx.Memories = memories
	}

	// 4. 相关文档分块：共享语料，只过滤 is_active
	chunks, err := s.documentRepo.SearchNearestChunks(ctx, queryVector, config.Conf.RAG.ChunkTopK)
	if err != nil {
		log.Errorf("[RetrievalService] 检索相关文档分块失败, error: %v", err)
	} else {
		pctx.Chunks = chunks
	}

	return pctx
}

// reverseMessages 把倒序返回的消息反转为时间正序。
func reverseMessages(messages []model.Message) []model.Message {
	reversed := make([]model.Message, len(messages))
	for i, msg := range messages {
		reversed[len(messages)-1-i] = msg
	}
	return reversed
}
