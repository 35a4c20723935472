// Package pipeline 定义了文档摄取的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"unicode/utf8"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/embedding"
	"chatbot-rag-go/pkg/log"
	"chatbot-rag-go/pkg/storage"
	"chatbot-rag-go/pkg/tasks"
	"chatbot-rag-go/pkg/tika"
)

// Processor 封装了文档处理的所有依赖和逻辑。
// 它由 Kafka 消费者驱动：下载原始文件、提取文本、分块、向量化并索引，
// 最后更新文档的处理状态。
type Processor struct {
	tikaClient      *tika.Client
	embeddingClient embedding.Client
	documentRepo    repository.DocumentRepository
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	embeddingClient embedding.Client,
	documentRepo repository.DocumentRepository,
) *Processor {
	return &Processor{
		tikaClient:      tikaClient,
		embeddingClient: embeddingClient,
		documentRepo:    documentRepo,
	}
}

// Process 是文档处理的主函数。返回错误时 Kafka 消费者会按重试策略重投，
// 因此处理前会先做幂等清理；最终失败由消费者在放弃重试时落地。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	log.Infof("[Processor] 开始处理文档, DocumentID: %s, Filename: %s", task.DocumentID, task.Filename)

	err := p.process(ctx, task)
	if err != nil {
		if stErr := p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusFailed); stErr != nil {
			log.Errorf("[Processor] 标记文档失败状态出错, DocumentID: %s, Error: %v", task.DocumentID, stErr)
		}
		return err
	}

	if err := p.documentRepo.UpdateStatus(task.DocumentID, model.DocumentStatusReady); err != nil {
		log.Errorf("[Processor] 标记文档就绪状态出错, DocumentID: %s, Error: %v", task.DocumentID, err)
		return err
	}
	log.Infof("[Processor] 文档处理成功完成, DocumentID: %s", task.DocumentID)
	return nil
}

func (p *Processor) process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	document, err := p.documentRepo.FindByID(task.DocumentID)
	if err != nil {
		return fmt.Errorf("查找文档记录失败: %w", err)
	}

	// 1. 从 MinIO 下载原始文件
	object, err := storage.GetObject(ctx, config.Conf.MinIO.BucketName, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	if size == 0 {
		return errors.New("文件内容为空")
	}
	log.Infof("[Processor] 步骤1: 文件下载成功, 大小: %d 字节", size)

	// 2. 使用 Tika 提取文本
	textContent, err := p.tikaClient.ExtractText(bytes.NewReader(buf.Bytes()), task.Filename)
	if err != nil {
		return fmt.Errorf("使用 Tika 提取文本失败: %w", err)
	}
	if textContent == "" {
		return errors.New("提取的文本内容为空")
	}
	log.Infof("[Processor] 步骤2: 文本提取成功, 内容长度: %d 字符", utf8.RuneCountInString(textContent))

	// 3. 文本切块
	chunks := splitText(textContent, config.Conf.RAG.ChunkSize, config.Conf.RAG.ChunkOverlap)
	if len(chunks) == 0 {
		return errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共 %d 个分块", len(chunks))

	// 4. 幂等清理：重试时先删掉既有分块，避免累计膨胀
	if err := p.documentRepo.DeleteChunksByDocument(ctx, task.DocumentID); err != nil {
		log.Warnf("[Processor] 清理旧分块失败, DocumentID: %s, Error: %v", task.DocumentID, err)
	}

	// 5. 分块文本入库
	chunkRows := make([]model.DocumentChunk, 0, len(chunks))
	for i, chunk := range chunks {
		chunkRows = append(chunkRows, model.DocumentChunk{
			DocumentID: task.DocumentID,
			ChunkIndex: fmt.Sprintf("page_1_chunk_%d", i),
			Content:    chunk,
			PageNumber: strconv.Itoa(1),
		})
	}
	if err := p.documentRepo.BatchCreateChunks(chunkRows); err != nil {
		return fmt.Errorf("批量保存文本分块失败: %w", err)
	}

	// 6. 逐块向量化并索引
	for i, chunkRow := range chunkRows {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, chunkRow.Content)
		if err != nil {
			return fmt.Errorf("分块 %d 向量化失败: %w", i, err)
		}

		chunkDoc := model.ChunkDoc{
			ChunkID:      chunkRow.ID,
			DocumentID:   task.DocumentID,
			ChunkIndex:   chunkRow.ChunkIndex,
			Content:      chunkRow.Content,
			Vector:       vector,
			ModelVersion: config.Conf.Embedding.Model,
			IsActive:     document.IsActive,
		}
		if err := p.documentRepo.IndexChunk(ctx, chunkDoc); err != nil {
			return fmt.Errorf("索引分块 %d 失败: %w", i, err)
		}
		log.Infof("[Processor] 分块 %d/%d 向量化并索引成功", i+1, len(chunkRows))
	}

	return nil
}

// splitText 将长文本按指定大小和重叠进行切分（按 rune 计数）。
func splitText(text string, chunkSize int, chunkOverlap int) []string {
	if chunkSize <= 0 {
		return nil
	}
	if chunkSize <= chunkOverlap {
		return simpleSplit(text, chunkSize)
	}

	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	for i := 0; i < len(runes); i += step {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func simpleSplit(text string, chunkSize int) []string {
	var chunks []string
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
