package repository

import (
	"chatbot-rag-go/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 接口定义了消息数据的持久化操作。
type MessageRepository interface {
	Create(message *model.Message) error
	// FindRecentByConversation 按创建时间倒序返回最近的 limit 条消息。
	// 调用方需要按时间正序使用时自行反转。
	FindRecentByConversation(conversationID string, limit int) ([]model.Message, error)
	// FindByConversation 按创建时间正序返回对话的全部消息。
	FindByConversation(conversationID string) ([]model.Message, error)
	CountByConversation(conversationID string) (int64, error)
}

// messageRepository 是 MessageRepository 接口的 GORM 实现。
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建一个新的 MessageRepository 实例。
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 在数据库中创建一条新的消息记录。
func (r *messageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

// FindRecentByConversation 按创建时间倒序检索最近的消息。
func (r *messageRepository) FindRecentByConversation(conversationID string, limit int) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at desc").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// FindByConversation 按创建时间正序检索对话的全部消息。
func (r *messageRepository) FindByConversation(conversationID string) ([]model.Message, error) {
	var messages []model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&messages).Error
	return messages, err
}

// CountByConversation 统计对话中的消息数量。
func (r *messageRepository) CountByConversation(conversationID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error
	return count, err
}
