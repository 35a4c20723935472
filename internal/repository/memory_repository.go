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

// MemoryRepository 接口定义了长期记忆的持久化与近邻检索操作。
// 记忆的归属关系存在 MySQL，向量与文本存在 Elasticsearch 的记忆索引。
type MemoryRepository interface {
	// Create 先写 MySQL 行，再把向量与文本写入 Elasticsearch。
	Create(ctx context.Context, memory *model.MemoryEmbedding, content string, vector []float32) error
	// SearchNearest 在记忆索引上做 k 近邻检索，按 user_id 与 conversation_id
	// 过滤，返回命中记忆的文本内容。
	SearchNearest(ctx context.Context, userID, conversationID string, vector []float32, k int) ([]string, error)
	// DeleteByConversation 清理某个对话的全部记忆（MySQL 行 + ES 文档）。
	DeleteByConversation(ctx context.Context, conversationID string) error
}

// memoryRepository 是 MemoryRepository 接口的实现。
type memoryRepository struct {
	db *gorm.DB
}

// NewMemoryRepository 创建一个新的 MemoryRepository 实例。
func NewMemoryRepository(db *gorm.DB) MemoryRepository {
	return &memoryRepository{db: db}
}

// Create 持久化一条记忆并索引其向量。
func (r *memoryRepository) Create(ctx context.Context, memory *model.MemoryEmbedding, content string, vector []float32) error {
	memory.Dimensions = len(vector)
	if err := r.db.Create(memory).Error; err != nil {
		return err
	}

	doc := model.MemoryDoc{
		MemoryID: memory.ID,
		UserID:   memory.UserID,
		Content:  content,
		Vector:   vector,
	}
	if memory.MessageID != nil {
		doc.MessageID = *memory.MessageID
	}
	if memory.ConversationID != nil {
		doc.ConversationID = *memory.ConversationID
	}

	if err := es.IndexDocument(ctx, config.Conf.Elasticsearch.MemoryIndex, memory.ID, doc); err != nil {
		// ES 写入失败时回滚 MySQL 行，保持两边一致
		if delErr := r.db.Where("id = ?", memory.ID).Delete(&model.MemoryEmbedding{}).Error; delErr != nil {
			log.Errorf("回滚记忆行失败: %v", delErr)
		}
		return err
	}
	return nil
}

// SearchNearest 检索与给定向量最相近的记忆文本。
func (r *memoryRepository) SearchNearest(ctx context.Context, userID, conversationID string, vector []float32, k int) ([]string, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"user_id": userID}},
		{"term": map[string]interface{}{"conversation_id": conversationID}},
	}

	sources, err := es.KnnSearch(ctx, config.Conf.Elasticsearch.MemoryIndex, vector, k, filters)
	if err != nil {
		return nil, err
	}

	contents := make([]string, 0, len(sources))
	for _, src := range sources {
		var doc model.MemoryDoc
		if err := json.Unmarshal(src, &doc); err != nil {
			log.Warnf("解析记忆索引命中文档失败: %v", err)
			continue
		}
		if doc.Content != "" {
			contents = append(contents, doc.Content)
		}
	}
	return contents, nil
}

// DeleteByConversation 删除某个对话关联的全部记忆。
func (r *memoryRepository) DeleteByConversation(ctx context.Context, conversationID string) error {
	if err := r.db.Where("conversation_id = ?", conversationID).Delete(&model.MemoryEmbedding{}).Error; err != nil {
		return err
	}
	return es.DeleteByQuery(ctx, config.Conf.Elasticsearch.MemoryIndex, "conversation_id", conversationID)
}
