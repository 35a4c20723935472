package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MemoryEmbedding 对应于数据库中的 'memory_embeddings' 表。
// 它记录一条可按语义相似度召回的长期记忆。向量本身与消息文本存储在
// Elasticsearch 的记忆索引中（文档 ID 即本行的主键），MySQL 侧只保留
// 归属关系，便于随对话级联清理。
type MemoryEmbedding struct {
	ID string `gorm:"type:char(36);primaryKey" json:"id"`
	// MessageID 指向来源消息；管理员上传的文档型记忆没有来源消息，为 NULL。
	MessageID *string `gorm:"type:char(36);index" json:"messageId"`
	// ConversationID 指向来源对话；文档型记忆为 NULL。
	ConversationID *string   `gorm:"type:char(36);index" json:"conversationId"`
	UserID         string    `gorm:"type:varchar(100);index;not null" json:"userId"`
	Dimensions     int       `gorm:"not null" json:"dimensions"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// BeforeCreate 在插入前生成 UUID 主键。
func (m *MemoryEmbedding) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (MemoryEmbedding) TableName() string {
	return "memory_embeddings"
}

// MemoryDoc 代表存储在 Elasticsearch 记忆索引中的文档结构。
type MemoryDoc struct {
	MemoryID       string    `json:"memory_id"`
	MessageID      string    `json:"message_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	UserID         string    `json:"user_id"`
	Content        string    `json:"content"`
	Vector         []float32 `json:"vector"`
}
