package handler

import (
	"errors"
	"net/http"
	"strconv"

	"chatbot-rag-go/internal/model"
	"chatbot-rag-go/internal/service"
	"chatbot-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// DocumentHandler 负责处理知识库文档管理相关的 API 请求（管理员）。
type DocumentHandler struct {
	documentService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(documentService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documentService: documentService}
}

// Upload 处理文档上传请求（multipart 表单，字段名为 file）。
// 上传成功即返回，解析与索引由后台管道异步完成。
func (h *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "缺少上传文件"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Errorf("Upload: 打开上传文件失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "读取上传文件失败"})
		return
	}
	defer file.Close()

	user, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
		return
	}
	uploadedBy := user.(*model.User).ID

	contentType := fileHeader.Header.Get("Content-Type")
	document, err := h.documentService.Upload(c.Request.Context(), fileHeader.Filename, fileHeader.Size, contentType, file, uploadedBy)
	if err != nil {
		log.Errorf("Upload: 上传文档失败, filename: %s, error: %v", fileHeader.Filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "上传文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Document accepted for processing", "data": document})
}

// List 分页获取文档列表及各自的分块数量。
func (h *DocumentHandler) List(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	documents, total, err := h.documentService.List(offset, limit)
	if err != nil {
		log.Errorf("List: 获取文档列表失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取文档列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"documents": documents,
			"total":     total,
		},
	})
}

// SetActiveRequest 定义了切换文档启用状态 API 的请求体结构。
type SetActiveRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// SetActive 切换文档的启用状态。
func (h *DocumentHandler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "isActive 不能为空"})
		return
	}
	documentID := c.Param("id")

	document, err := h.documentService.SetActive(c.Request.Context(), documentID, *req.IsActive)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在"})
			return
		}
		log.Errorf("SetActive: 更新文档状态失败, document: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "更新文档状态失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": document})
}

// Delete 删除文档及其全部分块。
func (h *DocumentHandler) Delete(c *gin.Context) {
	documentID := c.Param("id")

	if err := h.documentService.Delete(c.Request.Context(), documentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "文档不存在"})
			return
		}
		log.Errorf("Delete: 删除文档失败, document: %s, error: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除文档失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Document deleted"})
}
