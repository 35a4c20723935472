package handler

import (
	"errors"
	"net/http"
	"strconv"

	"chatbot-rag-go/internal/service"
	"chatbot-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConversationHandler 负责处理对话管理相关的 API 请求。
// 用户身份由查询参数 user_id 提供，归属校验在 service 层完成。
type ConversationHandler struct {
	conversationService service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler 实例。
func NewConversationHandler(conversationService service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

// List 分页获取某个用户的对话列表。
func (h *ConversationHandler) List(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "user_id 不能为空"})
		return
	}

	offset, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	conversations, total, err := h.conversationService.List(userID, offset, limit)
	if err != nil {
		log.Errorf("List: 获取对话列表失败, user: %s, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取对话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"conversations": conversations,
			"total":         total,
		},
	})
}

// CreateConversationRequest 定义了创建对话 API 的请求体结构。
type CreateConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Create 创建一个空对话。
func (h *ConversationHandler) Create(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "user_id 不能为空"})
		return
	}

	conversation, err := h.conversationService.Create(req.UserID)
	if err != nil {
		log.Errorf("Create: 创建对话失败, user: %s, error: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "创建对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversation})
}

// Detail 获取对话详情及全部消息。
func (h *ConversationHandler) Detail(c *gin.Context) {
	userID := c.Query("user_id")
	conversationID := c.Param("id")

	detail, err := h.conversationService.Detail(userID, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "对话不存在"})
			return
		}
		log.Errorf("Detail: 获取对话详情失败, conversation: %s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取对话详情失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": detail})
}

// RenameConversationRequest 定义了重命名对话 API 的请求体结构。
type RenameConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Title  string `json:"title" binding:"required"`
}

// Rename 重命名一个对话。
func (h *ConversationHandler) Rename(c *gin.Context) {
	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "user_id 和 title 不能为空"})
		return
	}
	conversationID := c.Param("id")

	conversation, err := h.conversationService.Rename(req.UserID, conversationID, req.Title)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "对话不存在"})
			return
		}
		log.Errorf("Rename: 重命名对话失败, conversation: %s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "重命名对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": conversation})
}

// Delete 级联删除对话及其消息与记忆。
func (h *ConversationHandler) Delete(c *gin.Context) {
	userID := c.Query("user_id")
	conversationID := c.Param("id")

	if err := h.conversationService.Delete(c.Request.Context(), userID, conversationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "对话不存在"})
			return
		}
		log.Errorf("Delete: 删除对话失败, conversation: %s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除对话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "Conversation deleted"})
}

// ForceSummaryRequest 定义了强制生成标题 API 的请求体结构。
type ForceSummaryRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ForceSummary 对一个对话强制推进标题状态机。
func (h *ConversationHandler) ForceSummary(c *gin.Context) {
	var req ForceSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "user_id 不能为空"})
		return
	}
	conversationID := c.Param("id")

	summary, err := h.conversationService.ForceSummary(c.Request.Context(), req.UserID, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "对话不存在"})
			return
		}
		log.Errorf("ForceSummary: 推进标题失败, conversation: %s, error: %v", conversationID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "生成标题失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    gin.H{"conversation_id": conversationID, "summary": summary},
	})
}
