// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/internal/handler"
	"chatbot-rag-go/internal/middleware"
	"chatbot-rag-go/internal/pipeline"
	"chatbot-rag-go/internal/repository"
	"chatbot-rag-go/internal/service"
	"chatbot-rag-go/pkg/database"
	"chatbot-rag-go/pkg/embedding"
	"chatbot-rag-go/pkg/es"
	"chatbot-rag-go/pkg/kafka"
	"chatbot-rag-go/pkg/llm"
	"chatbot-rag-go/pkg/log"
	"chatbot-rag-go/pkg/storage"
	"chatbot-rag-go/pkg/tika"
	"chatbot-rag-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化基础设施连接
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatalf("es 初始化失败: %v", err)
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	conversationRepo := repository.NewConversationRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	memoryRepo := repository.NewMemoryRepository(database.DB)
	documentRepo := repository.NewDocumentRepository(database.DB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)

	userService := service.NewUserService(userRepo, jwtManager)
	retrievalService := service.NewRetrievalService(messageRepo, memoryRepo, documentRepo, embeddingClient)
	summaryService := service.NewSummaryService(conversationRepo, messageRepo, llmClient)
	indexerService := service.NewIndexerService(memoryRepo, embeddingClient)
	chatService := service.NewChatService(conversationRepo, messageRepo, retrievalService, summaryService, indexerService, llmClient)
	conversationService := service.NewConversationService(conversationRepo, messageRepo, memoryRepo, summaryService)
	documentService := service.NewDocumentService(documentRepo)

	// 6. 初始化文档处理管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(tikaClient, embeddingClient, documentRepo)
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 7. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	authHandler := handler.NewAuthHandler(userService)
	chatHandler := handler.NewChatHandler(chatService, jwtManager)
	conversationHandler := handler.NewConversationHandler(conversationService)
	documentHandler := handler.NewDocumentHandler(documentService)
	adminHandler := handler.NewAdminHandler(userService)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 8. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/login", userHandler.Login)
			auth.POST("/refreshToken", authHandler.RefreshToken)

			authed := auth.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.POST("/logout", userHandler.Logout)
			}

			// 注册入口仅管理员可用
			adminOnly := auth.Group("/")
			adminOnly.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
			{
				adminOnly.POST("/register", userHandler.Register)
			}
		}

		// Chat 路由：用户身份由请求体中的 user_id 提供
		apiV1.POST("/chat", chatHandler.Chat)
		apiV1.POST("/chat/stream", chatHandler.ChatStream)

		// Conversation 路由组
		conversations := apiV1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)
			conversations.POST("", conversationHandler.Create)
			conversations.GET("/:id", conversationHandler.Detail)
			conversations.PUT("/:id", conversationHandler.Rename)
			conversations.DELETE("/:id", conversationHandler.Delete)
			conversations.POST("/:id/summary", conversationHandler.ForceSummary)
		}
	}

	// WebSocket 聊天入口，token 放在路径上
	r.GET("/chat/ws/:token", chatHandler.HandleWS)

	// 管理员路由组，需要同时通过认证和管理员授权两个中间件
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
	{
		admin.POST("/documents", documentHandler.Upload)
		admin.GET("/documents", documentHandler.List)
		admin.PUT("/documents/:id/active", documentHandler.SetActive)
		admin.DELETE("/documents/:id", documentHandler.Delete)

		admin.GET("/users", adminHandler.ListUsers)
		admin.PUT("/users/:id", adminHandler.UpdateUser)
		admin.DELETE("/users/:id", adminHandler.DeleteUser)
	}

	// 9. 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}
