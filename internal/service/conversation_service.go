package service

import (
	"context"

	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/log"
)

// ConversationDetail 是对话详情：对话本身加上按时间正序排列的全部消息。
type ConversationDetail struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
}

// ConversationService 接口定义了对话管理操作。
// 所有操作都以 userID 校验归属，不属于该用户的对话一律按不存在处理。
type ConversationService interface {
	List(userID string, offset, limit int) ([]model.Conversation, int64, error)
	Create(userID string) (*model.Conversation, error)
	Detail(userID, conversationID string) (*ConversationDetail, error)
	Rename(userID, conversationID, title string) (*model.Conversation, error)
	// Delete 级联删除对话、消息与关联的长期记忆。
	Delete(ctx context.Context, userID, conversationID string) error
	// ForceSummary 对最近一条用户消息强制推进一次标题状态机。
	ForceSummary(ctx context.Context, userID, conversationID string) (string, error)
}

// conversationService 是 ConversationService 接口的实现。
type conversationService struct {
	conversationRepo repository.ConversationRepository
	messageRepo      repository.MessageRepository
	memoryRepo       repository.MemoryRepository
	summarizer       SummaryService
}

// NewConversationService 创建一个新的 ConversationService 实例。
func NewConversationService(
	conversationRepo repository.ConversationRepository,
	messageRepo repository.MessageRepository,
	memoryRepo repository.MemoryRepository,
	summarizer SummaryService,
) ConversationService {
	return &conversationService{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		memoryRepo:       memoryRepo,
		summarizer:       summarizer,
	}
}

// List 分页获取用户的对话列表，按创建时间倒序。
func (s *conversationService) List(userID string, offset, limit int) ([]model.Conversation, int64, error) {
	return s.conversationRepo.FindByUser(userID, offset, limit)
}

// Create 为用户创建一个空对话。
func (s *conversationService) Create(userID string) (*model.Conversation, error) {
	conversation := &model.Conversation{UserID: userID}
	if err := s.conversationRepo.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Detail 获取对话详情及其全部消息。
func (s *conversationService) Detail(userID, conversationID string) (*ConversationDetail, error) {
	conversation, err := s.conversationRepo.FindByIDAndUser(conversationID, userID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.FindByConversation(conversationID)
	if err != nil {
		return nil, err
	}

	return &ConversationDetail{
		Conversation: *conversation,
		Messages:     messages,
	}, nil
}

// Rename 直接更新对话摘要为用户指定的标题。
func (s *conversationService) Rename(userID, conversationID, title string) (*model.Conversation, error) {
	conversation, err := s.conversationRepo.FindByIDAndUser(conversationID, userID)
	if err != nil {
		return nil, err
	}

	if err := s.conversationRepo.UpdateSummary(conversationID, title); err != nil {
		return nil, err
	}
	conversation.Summary = title
	return conversation, nil
}

// Delete 级联删除对话及其消息与记忆。
func (s *conversationService) Delete(ctx context.Context, userID, conversationID string) error {
	if _, err := s.conversationRepo.FindByIDAndUser(conversationID, userID); err != nil {
		return err
	}

	// 记忆清理失败不阻塞对话删除，孤儿记忆只影响召回质量
	if err := s.memoryRepo.DeleteByConversation(ctx, conversationID); err != nil {
		log.Errorf("[ConversationService] 清理对话记忆失败, conversation: %s, error: %v", conversationID, err)
	}

	return s.conversationRepo.Delete(conversationID)
}

// ForceSummary 强制推进一次标题状态机，返回推进后的摘要。
func (s *conversationService) ForceSummary(ctx context.Context, userID, conversationID string) (string, error) {
	conversation, err := s.conversationRepo.FindByIDAndUser(conversationID, userID)
	if err != nil {
		return "", err
	}

	// 用最近一条用户消息作为分类输入
	messages, err := s.messageRepo.FindRecentByConversation(conversationID, 20)
	if err != nil {
		return "", err
	}
	var latestUserMessage string
	for _, msg := range messages {
		if msg.SenderRole == model.SenderRoleUser {
			latestUserMessage = msg.Content
			break
		}
	}

	return s.summarizer.Advance(ctx, conversation, latestUserMessage), nil
}
