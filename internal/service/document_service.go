package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/pkg/kafka"
	"chatbot-rag-go/pkg/log"
	"chatbot-rag-go/pkg/storage"
	"chatbot-rag-go/pkg/tasks"

	"github.com/google/uuid"
)

// DocumentInfo 是文档列表项：文档本身加上已索引的分块数量。
type DocumentInfo struct {
	model.Document
	ChunkCount int64 `json:"chunkCount"`
}

// DocumentService 接口定义了知识库文档的管理操作。
// 上传只负责把原始文件放进对象存储并投递 Kafka 任务，
// 解析、分块与向量化由消费端的处理管道异步完成。
type DocumentService interface {
	Upload(ctx context.Context, filename string, size int64, contentType string, reader io.Reader, uploadedBy string) (*model.Document, error)
	List(offset, limit int) ([]DocumentInfo, int64, error)
	SetActive(ctx context.Context, documentID string, active bool) (*model.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// documentService 是 DocumentService 接口的实现。
type documentService struct {
	documentRepo repository.DocumentRepository
}

// NewDocumentService 创建一个新的 DocumentService 实例。
func NewDocumentService(documentRepo repository.DocumentRepository) DocumentService {
	return &documentService{documentRepo: documentRepo}
}

// Upload 接收上传文件：写 MinIO、建文档记录、投递处理任务。
func (s *documentService) Upload(ctx context.Context, filename string, size int64, contentType string, reader io.Reader, uploadedBy string) (*model.Document, error) {
	documentID := uuid.NewString()
	objectName := "documents/" + documentID + filepath.Ext(filename)

	// 1. 原始文件进对象存储
	if err := storage.PutObject(ctx, config.Conf.MinIO.BucketName, objectName, reader, size, contentType); err != nil {
		return nil, fmt.Errorf("上传文件到对象存储失败: %w", err)
	}

	// 2. 建文档记录，状态为处理中
	document := &model.Document{
		ID:         documentID,
		Filename:   filename,
		Title:      strings.TrimSuffix(filename, filepath.Ext(filename)),
		ObjectName: objectName,
		FileSize:   size,
		UploadedBy: uploadedBy,
		IsActive:   true,
		Status:     model.DocumentStatusProcessing,
	}
	if err := s.documentRepo.Create(document); err != nil {
		// 回收已上传的对象，避免产生孤儿文件
		if rmErr := storage.RemoveObject(ctx, config.Conf.MinIO.BucketName, objectName); rmErr != nil {
			log.Errorf("[DocumentService] 回收对象失败, object: %s, error: %v", objectName, rmErr)
		}
		return nil, err
	}

	// 3. 投递 Kafka 任务，消费端完成解析与索引
	task := tasks.DocumentProcessingTask{
		DocumentID: documentID,
		ObjectName: objectName,
		Filename:   filename,
		UploadedBy: uploadedBy,
	}
	if err := kafka.ProduceDocumentTask(task); err != nil {
		log.Errorf("[DocumentService] 投递文档处理任务失败, document: %s, error: %v", documentID, err)
		if stErr := s.documentRepo.UpdateStatus(documentID, model.DocumentStatusFailed); stErr != nil {
			log.Errorf("[DocumentService] 标记文档失败状态出错, document: %s, error: %v", documentID, stErr)
		}
		return nil, fmt.Errorf("投递文档处理任务失败: %w", err)
	}

	return document, nil
}

// List 分页获取文档及各自的分块数量。
func (s *documentService) List(offset, limit int) ([]DocumentInfo, int64, error) {
	documents, total, err := s.documentRepo.FindWithPagination(offset, limit)
	if err != nil {
		return nil, 0, err
	}

	infos := make([]DocumentInfo, 0, len(documents))
	for _, document := range documents {
		count, err := s.documentRepo.CountChunks(document.ID)
		if err != nil {
			log.Warnf("[DocumentService] 统计分块数量失败, document: %s, error: %v", document.ID, err)
		}
		infos = append(infos, DocumentInfo{Document: document, ChunkCount: count})
	}
	return infos, total, nil
}

// SetActive 切换文档启用状态并同步到检索索引。
func (s *documentService) SetActive(ctx context.Context, documentID string, active bool) (*model.Document, error) {
	document, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		return nil, err
	}

	if err := s.documentRepo.SetActive(ctx, documentID, active); err != nil {
		return nil, err
	}
	document.IsActive = active
	return document, nil
}

// Delete 删除文档：对象存储、MySQL 行与检索索引一并清理。
func (s *documentService) Delete(ctx context.Context, documentID string) error {
	document, err := s.documentRepo.FindByID(documentID)
	if err != nil {
		return err
	}

	// 对象删除失败不阻塞元数据清理
	if err := storage.RemoveObject(ctx, config.Conf.MinIO.BucketName, document.ObjectName); err != nil {
		log.Errorf("[DocumentService] 删除对象失败, object: %s, error: %v", document.ObjectName, err)
	}

	return s.documentRepo.Delete(ctx, documentID)
}
