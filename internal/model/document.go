package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 文档处理状态常量。
const (
	DocumentStatusProcessing = 0
	DocumentStatusReady      = 1
	DocumentStatusFailed     = 2
)

// Document 对应于数据库中的 'documents' 表。
// 它记录一份由管理员上传、供全体用户检索的知识库文档。
type Document struct {
	ID       string `gorm:"type:char(36);primaryKey" json:"id"`
	Filename string `gorm:"type:varchar(255);not null" json:"filename"`
	Title    string `gorm:"type:varchar(255)" json:"title"`
	// ObjectName 是原始文件在 MinIO 中的对象键。
	ObjectName string `gorm:"type:varchar(255);not null" json:"objectName"`
	FileSize   int64  `gorm:"not null" json:"fileSize"`
	UploadedBy string `gorm:"type:char(36);not null" json:"uploadedBy"`
	// IsActive 为 false 时，该文档的分块不参与检索。
	IsActive bool `gorm:"not null;default:true" json:"isActive"`
	// Status 取值见 DocumentStatus* 常量。
	Status     int       `gorm:"type:tinyint;not null;default:0" json:"status"`
	UploadedAt time.Time `gorm:"autoCreateTime" json:"uploadedAt"`
}

// BeforeCreate 在插入前生成 UUID 主键。
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 对应于数据库中的 'document_chunks' 表。
// 向量与可检索文本存储在 Elasticsearch 的分块索引中（文档 ID 即本行主键）。
type DocumentChunk struct {
	ID         string `gorm:"type:char(36);primaryKey" json:"id"`
	DocumentID string `gorm:"type:char(36);index;not null" json:"documentId"`
	// ChunkIndex 是形如 "page_2_chunk_0" 的序号标签。
	ChunkIndex string    `gorm:"type:varchar(50);not null" json:"chunkIndex"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	PageNumber string    `gorm:"type:varchar(20)" json:"pageNumber"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// BeforeCreate 在插入前生成 UUID 主键。
func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// ChunkDoc 代表存储在 Elasticsearch 分块索引中的文档结构。
// IsActive 是父文档 is_active 标志的冗余镜像，用于在 knn 查询中过滤。
type ChunkDoc struct {
	ChunkID      string    `json:"chunk_id"`
	DocumentID   string    `json:"document_id"`
	ChunkIndex   string    `json:"chunk_index"`
	Content      string    `json:"content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	IsActive     bool      `json:"is_active"`
}
