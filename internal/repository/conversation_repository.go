package repository

import (
	"chatbot-rag-go/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 接口定义了对话数据的持久化操作。
type ConversationRepository interface {
	Create(conversation *model.Conversation) error
	FindByID(id string) (*model.Conversation, error)
	// FindByIDAndUser 只返回属于该用户的对话，归属不匹配时返回 gorm.ErrRecordNotFound。
	FindByIDAndUser(id, userID string) (*model.Conversation, error)
	FindByUser(userID string, offset, limit int) ([]model.Conversation, int64, error)
	UpdateSummary(id, summary string) error
	// Delete 删除对话及其全部消息。
	Delete(id string) error
}

// conversationRepository 是 ConversationRepository 接口的 GORM 实现。
type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// Create 在数据库中创建一个新的对话记录。
func (r *conversationRepository) Create(conversation *model.Conversation) error {
	return r.db.Create(conversation).Error
}

// FindByID 根据主键查找对话。
func (r *conversationRepository) FindByID(id string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByIDAndUser 根据主键和归属用户查找对话。
func (r *conversationRepository) FindByIDAndUser(id, userID string) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.Where("id = ? AND user_id = ?", id, userID).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// FindByUser 分页检索某个用户的对话，按创建时间倒序。
func (r *conversationRepository) FindByUser(userID string, offset, limit int) ([]model.Conversation, int64, error) {
	var conversations []model.Conversation
	var total int64

	db := r.db.Model(&model.Conversation{}).Where("user_id = ?", userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("created_at desc").Offset(offset).Limit(limit).Find(&conversations).Error
	if err != nil {
		return nil, 0, err
	}

	return conversations, total, nil
}

// UpdateSummary 更新对话的摘要字段。
func (r *conversationRepository) UpdateSummary(id, summary string) error {
	return r.db.Model(&model.Conversation{}).Where("id = ?", id).Update("summary", summary).Error
}

// Delete 在同一个事务中删除对话与其全部消息。
func (r *conversationRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Conversation{}).Error
	})
}
