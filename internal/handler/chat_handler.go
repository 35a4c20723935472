package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"chatbot-rag-go/internal/service"
	"chatbot-rag-go/pkg/log"
	"chatbot-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理同步、流式与 WebSocket 三种聊天入口。
type ChatHandler struct {
	chatService service.ChatService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		jwtManager:  jwtManager,
	}
}

// Chat 处理同步聊天请求。
// 模型超时或出错时响应仍然是 200，错误以文案形式出现在 response 字段。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：user_id 和 message 不能为空",
		})
		return
	}

	resp, err := h.chatService.GenerateReply(c.Request.Context(), req)
	if err != nil {
		log.Errorf("Chat: 处理聊天请求失败, user: %s, error: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "处理聊天请求失败",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ChatStream 处理流式聊天请求。
// 对话 id 在第一个字节之前通过 X-Conversation-Id 响应头传出，
// 正文是分片写出的纯文本。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：user_id 和 message 不能为空",
		})
		return
	}

	conversation, err := h.chatService.ResolveConversation(c.Request.Context(), req.UserID, req.ConversationID)
	if err != nil {
		log.Errorf("ChatStream: 解析对话失败, user: %s, error: %v", req.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "解析对话失败",
		})
		return
	}

	c.Header("X-Conversation-Id", conversation.ID)
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	h.chatService.StreamReply(c.Request.Context(), conversation, req, func(fragment string) error {
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
}

// wsChatRequest 是 WebSocket 聊天消息的结构。
type wsChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Timezone       string `json:"timezone"`
}

// HandleWS 处理一个传入的 WebSocket 聊天连接。
// 身份由路径上的 token 确定，每条消息走与 HTTP 流式路径相同的编排逻辑，
// 增量片段包装为 {"chunk": "..."}，流结束后发送 completion 通知。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", claims.Username)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var wsReq wsChatRequest
		if err := json.Unmarshal(message, &wsReq); err != nil || wsReq.Message == "" {
			// 非 JSON 输入按纯文本消息处理
			wsReq = wsChatRequest{Message: string(message)}
		}

		req := service.ChatRequest{
			UserID:         claims.UserID,
			Message:        wsReq.Message,
			ConversationID: wsReq.ConversationID,
			Timezone:       wsReq.Timezone,
		}

		conversation, err := h.chatService.ResolveConversation(c.Request.Context(), req.UserID, req.ConversationID)
		if err != nil {
			log.Errorf("HandleWS: 解析对话失败, user: %s, error: %v", req.UserID, err)
			errResp, _ := json.Marshal(gin.H{"error": "AI服务暂时不可用，请稍后重试"})
			_ = conn.WriteMessage(websocket.TextMessage, errResp)
			continue
		}

		// 先把对话 id 告知客户端，等价于 HTTP 路径的响应头
		head, _ := json.Marshal(gin.H{"type": "conversation", "conversation_id": conversation.ID})
		_ = conn.WriteMessage(websocket.TextMessage, head)

		h.chatService.StreamReply(c.Request.Context(), conversation, req, func(fragment string) error {
			chunk, err := json.Marshal(gin.H{"chunk": fragment})
			if err != nil {
				return err
			}
			return conn.WriteMessage(websocket.TextMessage, chunk)
		})

		done, _ := json.Marshal(gin.H{
			"type":      "completion",
			"status":    "finished",
			"timestamp": time.Now().UnixMilli(),
		})
		_ = conn.WriteMessage(websocket.TextMessage, done)
	}
}
