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

// AdminHandler 负责处理管理员的用户管理 API 请求。
type AdminHandler struct {
	userService service.UserService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(userService service.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// ListUsers 分页获取全部用户。
func (h *AdminHandler) ListUsers(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	users, total, err := h.userService.ListUsers(offset, limit)
	if err != nil {
		log.Errorf("ListUsers: 获取用户列表失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "获取用户列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"users": users,
			"total": total,
		},
	})
}

// UpdateUserRequest 定义了更新用户 API 的请求体结构，nil 字段保持不变。
type UpdateUserRequest struct {
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

// UpdateUser 更新一个用户的角色、启用状态或密码。
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载"})
		return
	}
	userID := c.Param("id")

	user, err := h.userService.UpdateUser(userID, req.Role, req.IsActive, req.Password)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "用户不存在"})
			return
		}
		log.Errorf("UpdateUser: 更新用户失败, user: %s, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "更新用户失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": user})
}

// DeleteUser 删除一个用户。
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	if err := h.userService.DeleteUser(userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "用户不存在"})
			return
		}
		log.Errorf("DeleteUser: 删除用户失败, user: %s, error: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "删除用户失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "User deleted"})
}
