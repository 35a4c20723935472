package repository

import (
	"context"
	"encoding/json"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/pkg/es"
	"chatbot-rag-go/pkg/log"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了知识库文档与分块的持久化和检索操作。
type DocumentRepository interface {
	Create(document *model.Document) error
	FindByID(id string) (*model.Document, error)
	FindWithPagination(offset, limit int) ([]model.Document, int64, error)
	UpdateStatus(id string, status int) error
	// SetActive 更新文档的启用标志，并同步镜像到分块索引的 is_active 字段。
	SetActive(ctx context.Context, id string, active bool) error
	// Delete 删除文档、其分块行与分块索引中的全部文档。
	Delete(ctx context.Context, id string) error

	BatchCreateChunks(chunks []model.DocumentChunk) error
	DeleteChunksByDocument(ctx context.Context, documentID string) error
	CountChunks(documentID string) (int64, error)
	// IndexChunk 将分块向量写入 Elasticsearch 分块索引。
	IndexChunk(ctx context.Context, doc model.ChunkDoc) error
	// SearchNearestChunks 在分块索引上做 k 近邻检索，只召回 is_active 的分块，
	// 返回命中分块的文本内容。
	SearchNearestChunks(ctx context.Context, vector []float32, k int) ([]string, error)
}

// documentRepository 是 DocumentRepository 接口的实现。
type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Create 在数据库中创建一条新的文档记录。
func (r *documentRepository) Create(document *model.Document) error {
	return r.db.Create(document).Error
}

// FindByID 根据主键查找文档。
func (r *documentRepository) FindByID(id string) (*model.Document, error) {
	var document model.Document
	err := r.db.Where("id = ?", id).First(&document).Error
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// FindWithPagination 分页检索文档，按上传时间倒序。
func (r *documentRepository) FindWithPagination(offset, limit int) ([]model.Document, int64, error) {
	var documents []model.Document
	var total int64

	db := r.db.Model(&model.Document{})

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Order("uploaded_at desc").Offset(offset).Limit(limit).Find(&documents).Error
	if err != nil {
		return nil, 0, err
	}

	return documents, total, nil
}

// UpdateStatus 更新文档的处理状态。
func (r *documentRepository) UpdateStatus(id string, status int) error {
	return r.db.Model(&model.Document{}).Where("id = ?", id).Update("status", status).Error
}

// SetActive 更新启用标志并同步到分块索引。
func (r *documentRepository) SetActive(ctx context.Context, id string, active bool) error {
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Update("is_active", active).Error; err != nil {
		return err
	}
	return es.UpdateByQuery(ctx, config.Conf.Elasticsearch.ChunkIndex,
		"document_id", id,
		"ctx._source.is_active = params.active",
		map[string]interface{}{"active": active},
	)
}

// Delete 删除文档及其全部分块。
func (r *documentRepository) Delete(ctx context.Context, id string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Document{}).Error
	})
	if err != nil {
		return err
	}
	return es.DeleteByQuery(ctx, config.Conf.Elasticsearch.ChunkIndex, "document_id", id)
}

// BatchCreateChunks 批量创建分块记录。
func (r *documentRepository) BatchCreateChunks(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.CreateInBatches(chunks, 100).Error
}

// DeleteChunksByDocument 删除文档的全部分块（MySQL 行 + ES 文档），
// 用于任务重试前的幂等清理。
func (r *documentRepository) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.DocumentChunk{}).Error; err != nil {
		return err
	}
	return es.DeleteByQuery(ctx, config.Conf.Elasticsearch.ChunkIndex, "document_id", documentID)
}

// CountChunks 统计文档的分块数量。
func (r *documentRepository) CountChunks(documentID string) (int64, error) {
	var count int64
	err := r.db.Model(&model.DocumentChunk{}).Where("document_id = ?", documentID).Count(&count).Error
	return count, err
}

// IndexChunk 将单个分块写入 Elasticsearch。
func (r *documentRepository) IndexChunk(ctx context.Context, doc model.ChunkDoc) error {
	return es.IndexDocument(ctx, config.Conf.Elasticsearch.ChunkIndex, doc.ChunkID, doc)
}

// SearchNearestChunks 检索与给定向量最相近的启用分块文本。
func (r *documentRepository) SearchNearestChunks(ctx context.Context, vector []float32, k int) ([]string, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"is_active": true}},
	}

	sources, err := es.KnnSearch(ctx, config.Conf.Elasticsearch.ChunkIndex, vector, k, filters)
	if err != nil {
		return nil, err
	}

	contents := make([]string, 0, len(sources))
	for _, src := range sources {
		var doc model.ChunkDoc
		if err := json.Unmarshal(src, &doc); err != nil {
			log.Warnf("解析分块索引命中文档失败: %v", err)
			continue
		}
		if doc.Content != "" {
			contents = append(contents, doc.Content)
		}
	}
	return contents, nil
}
