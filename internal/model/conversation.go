// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 消息发送方角色常量。
const (
	SenderRoleUser      = "user"
	SenderRoleAssistant = "assistant"
)

// Conversation 对应于数据库中的 'conversations' 表。
// Summary 的取值有三种状态：空（尚未总结）、哨兵值 "New Conversation"（内容
// 不足以生成标题）、或一个由模型生成的短标题（不超过 7 个词）。
type Conversation struct {
	ID string `gorm:"type:char(36);primaryKey" json:"id"`
	// UserID 是客户端提供的用户标识，不与 users 表做外键约束。
	UserID    string    `gorm:"type:varchar(100);index;not null" json:"userId"`
	Summary   string    `gorm:"type:text" json:"summary"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// BeforeCreate 在插入前为对话生成 UUID 主键。
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// Message 对应于数据库中的 'messages' 表。消息创建后不可变。
type Message struct {
	ID             string `gorm:"type:char(36);primaryKey" json:"id"`
	ConversationID string `gorm:"type:char(36);index;not null" json:"conversationId"`
	// SenderRole 取值为 "user" 或 "assistant"。
	SenderRole string    `gorm:"type:varchar(20);not null" json:"senderRole"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	// Timezone 是客户端上报的时区标签，可为空。
	Timezone string `gorm:"type:varchar(64)" json:"timezone,omitempty"`
}

// BeforeCreate 在插入前为消息生成 UUID 主键。
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (Message) TableName() string {
	return "messages"
}
