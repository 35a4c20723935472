package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/pkg/llm"

	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	config.Conf.AI.Timeout = config.AITimeoutConfig{
		GenerationSeconds: 15,
		StreamSeconds:     120,
		ClassifySeconds:   5,
		TitleSeconds:      10,
	}
	config.Conf.RAG = config.RAGConfig{
		HistorySize:          20,
		StreamHistorySize:    3,
		MemoryTopK:           1,
		ChunkTopK:            3,
		HistoryClassifyLimit: 100,
		ChunkSize:            1000,
		ChunkOverlap:         200,
	}
	os.Exit(m.Run())
}

// 内存实现的仓库与客户端替身，供本包测试使用。

type fakeConversationRepo struct {
	conversations  map[string]*model.Conversation
	summaryUpdates []string
	updateErr      error
	nextID         int
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*model.Conversation)}
}

func (r *fakeConversationRepo) Create(conversation *model.Conversation) error {
	if conversation.ID == "" {
		r.nextID++
		conversation.ID = fmt.Sprintf("conv-%d", r.nextID)
	}
	conversation.CreatedAt = time.Now()
	clone := *conversation
	r.conversations[conversation.ID] = &clone
	return nil
}

func (r *fakeConversationRepo) FindByID(id string) (*model.Conversation, error) {
	conversation, ok := r.conversations[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *conversation
	return &clone, nil
}

func (r *fakeConversationRepo) FindByIDAndUser(id, userID string) (*model.Conversation, error) {
	conversation, ok := r.conversations[id]
	if !ok || conversation.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *conversation
	return &clone, nil
}

func (r *fakeConversationRepo) FindByUser(userID string, offset, limit int) ([]model.Conversation, int64, error) {
	var result []model.Conversation
	for _, conversation := range r.conversations {
		if conversation.UserID == userID {
			result = append(result, *conversation)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, int64(len(result)), nil
}

func (r *fakeConversationRepo) UpdateSummary(id, summary string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	conversation, ok := r.conversations[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	conversation.Summary = summary
	r.summaryUpdates = append(r.summaryUpdates, summary)
	return nil
}

func (r *fakeConversationRepo) Delete(id string) error {
	delete(r.conversations, id)
	return nil
}

type fakeMessageRepo struct {
	messages  []model.Message
	createErr error
	nextID    int
}

func (r *fakeMessageRepo) Create(message *model.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	if message.ID == "" {
		message.ID = fmt.Sprintf("msg-%d", r.nextID)
	}
	message.CreatedAt = time.Now().Add(time.Duration(r.nextID) * time.Millisecond)
	r.messages = append(r.messages, *message)
	return nil
}

func (r *fakeMessageRepo) FindRecentByConversation(conversationID string, limit int) ([]model.Message, error) {
	var result []model.Message
	for i := len(r.messages) - 1; i >= 0 && len(result) < limit; i-- {
		if r.messages[i].ConversationID == conversationID {
			result = append(result, r.messages[i])
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) FindByConversation(conversationID string) ([]model.Message, error) {
	var result []model.Message
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			result = append(result, message)
		}
	}
	return result, nil
}

func (r *fakeMessageRepo) CountByConversation(conversationID string) (int64, error) {
	var count int64
	for _, message := range r.messages {
		if message.ConversationID == conversationID {
			count++
		}
	}
	return count, nil
}

// byRole 返回会话中指定角色的消息内容。
func (r *fakeMessageRepo) byRole(conversationID, role string) []string {
	var contents []string
	for _, message := range r.messages {
		if message.ConversationID == conversationID && message.SenderRole == role {
			contents = append(contents, message.Content)
		}
	}
	return contents
}

// fakeMemoryRepo 会被后台索引 goroutine 并发写入，需要加锁。
type fakeMemoryRepo struct {
	mu         sync.Mutex
	created    []model.MemoryEmbedding
	contents   []string
	searchHits []string
	searchErr  error
	createErr  error
}

func (r *fakeMemoryRepo) Create(ctx context.Context, memory *model.MemoryEmbedding, content string, vector []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	memory.Dimensions = len(vector)
	r.created = append(r.created, *memory)
	r.contents = append(r.contents, content)
	return nil
}

func (r *fakeMemoryRepo) snapshot() ([]model.MemoryEmbedding, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MemoryEmbedding(nil), r.created...), append([]string(nil), r.contents...)
}

func (r *fakeMemoryRepo) SearchNearest(ctx context.Context, userID, conversationID string, vector []float32, k int) ([]string, error) {
	if r.searchErr != nil {
		return nil, r.searchErr
	}
	if len(r.searchHits) > k {
		return r.searchHits[:k], nil
	}
	return r.searchHits, nil
}

func (r *fakeMemoryRepo) DeleteByConversation(ctx context.Context, conversationID string) error {
	return nil
}

type fakeDocumentRepo struct {
	chunkHits []string
	chunkErr  error
}

func (r *fakeDocumentRepo) Create(document *model.Document) error          { return nil }
func (r *fakeDocumentRepo) FindByID(id string) (*model.Document, error)    { return nil, gorm.ErrRecordNotFound }
func (r *fakeDocumentRepo) UpdateStatus(id string, status int) error       { return nil }
func (r *fakeDocumentRepo) BatchCreateChunks(chunks []model.DocumentChunk) error { return nil }
func (r *fakeDocumentRepo) CountChunks(documentID string) (int64, error)   { return 0, nil }

func (r *fakeDocumentRepo) FindWithPagination(offset, limit int) ([]model.Document, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepo) SetActive(ctx context.Context, id string, active bool) error { return nil }
func (r *fakeDocumentRepo) Delete(ctx context.Context, id string) error                 { return nil }

func (r *fakeDocumentRepo) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	return nil
}

func (r *fakeDocumentRepo) IndexChunk(ctx context.Context, doc model.ChunkDoc) error { return nil }

func (r *fakeDocumentRepo) SearchNearestChunks(ctx context.Context, vector []float32, k int) ([]string, error) {
	if r.chunkErr != nil {
		return nil, r.chunkErr
	}
	if len(r.chunkHits) > k {
		return r.chunkHits[:k], nil
	}
	return r.chunkHits, nil
}

type fakeLLMClient struct {
	completeFn func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error)
	streamFn   func(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, onDelta func(string) error) error
}

func (c *fakeLLMClient) ChatCompletion(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	if c.completeFn == nil {
		return "", fmt.Errorf("unexpected ChatCompletion call")
	}
	return c.completeFn(ctx, messages, gen)
}

func (c *fakeLLMClient) StreamChatCompletion(ctx context.Context, messages []llm.Message, gen *llm.GenerationParams, onDelta func(delta string) error) error {
	if c.streamFn == nil {
		return fmt.Errorf("unexpected StreamChatCompletion call")
	}
	return c.streamFn(ctx, messages, gen, onDelta)
}

type fakeEmbeddingClient struct {
	mu     sync.Mutex
	vector []float32
	err    error
	calls  int
	// called 在每次调用后收到信号，用于等待异步路径
	called chan struct{}
}

func (c *fakeEmbeddingClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	c.calls++
	err := c.err
	vector := c.vector
	c.mu.Unlock()

	if c.called != nil {
		select {
		case c.called <- struct{}{}:
		default:
		}
	}
	if err != nil {
		return nil, err
	}
	return vector, nil
}
