package service

import (
	"context"
	"time"

	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/embedding"
	"chatbot-rag-go/pkg/log"
)

// IndexerService 把用户消息异步写入长期记忆。
// 索引在响应返回后独立运行，使用自己的上下文与连接池连接，
// 所有失败只记日志，绝不影响聊天可用性。
type IndexerService interface {
	IndexMessageAsync(message *model.Message, conversation *model.Conversation)
}

// indexerService 是 IndexerService 接口的实现。
type indexerService struct {
	memoryRepo      repository.MemoryRepository
	embeddingClient embedding.Client
}

// NewIndexerService 创建一个新的 IndexerService 实例。
func NewIndexerService(memoryRepo repository.MemoryRepository, embeddingClient embedding.Client) IndexerService {
	return &indexerService{
		memoryRepo:      memoryRepo,
		embeddingClient: embeddingClient,
	}
}

// IndexMessageAsync 在独立 goroutine 中向量化消息并落库。
// 不使用请求的上下文：请求可能已经返回，其资源生命周期已结束。
func (s *indexerService) IndexMessageAsync(message *model.Message, conversation *model.Conversation) {
	messageID := message.ID
	conversationID := conversation.ID
	userID := conversation.UserID
	content := message.Content

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("[IndexerService] 后台索引 panic, message: %s, recovered: %v", messageID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		vector, err := s.embeddingClient.CreateEmbedding(ctx, content)
		if err != nil {
			log.Warnf("[IndexerService] 向量化消息失败, message: %s, error: %v", messageID, err)
			return
		}

		memory := &model.MemoryEmbedding{
			MessageID:      &messageID,
			ConversationID: &conversationID,
			UserID:         userID,
		}
		if err := s.memoryRepo.Create(ctx, memory, content, vector); err != nil {
			log.Warnf("[IndexerService] 持久化记忆失败, message: %s, error: %v", messageID, err)
		}
	}()
}
