// Package main 是网关进程的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/handler"
	"gqx-gateway-go/internal/middleware"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/internal/pipeline"
	"gqx-gateway-go/internal/repository"
	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/database"
	"gqx-gateway-go/pkg/embedding"
	"gqx-gateway-go/pkg/es"
	"gqx-gateway-go/pkg/kafka"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/provider"
	"gqx-gateway-go/pkg/storage"
	"gqx-gateway-go/pkg/token"

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

	// 3. 初始化基础设施：租户库、配额计数、对象存储、检索索引
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	if err := database.DB.AutoMigrate(&model.Tenant{}); err != nil {
		log.Fatal("租户表迁移失败", err)
	}

	// 4. 初始化 Repository 与基础客户端
	tenantRepo := repository.NewTenantRepository(database.DB)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	embeddingClient := embedding.NewClient(cfg.Embedding)

	// 5. 初始化 Service (依赖注入)
	tenantService := service.NewTenantService(tenantRepo, jwtManager)
	quotaService := service.NewQuotaService(
		service.NewRedisCounter(database.RDB),
		cfg.Quota.WindowSeconds,
		cfg.Quota.Ceiling,
		cfg.Quota.FailClosed,
	)
	retrievalService := service.NewRetrievalService(embeddingClient, es.ESClient, cfg.Elasticsearch.IndexName)

	// 索引入队策略在构造期一次性选定：配置了队列走异步，否则同步入库
	processor := pipeline.NewProcessor(embeddingClient, pipeline.NewESUpserter(), cfg.Elasticsearch)
	var producer service.IndexProducer
	if cfg.Kafka.Brokers != "" {
		producer = kafka.NewProducer(cfg.Kafka)
	} else {
		log.Info("未配置索引队列，索引任务将同步入库")
	}
	indexService := service.NewIndexService(producer, processor)

	// 后端注册表：启动期构建一次的不可变映射
	registry := provider.NewRegistry(cfg.Providers)
	chatService := service.NewChatService(quotaService, retrievalService, registry, cfg.Retrieval.TopK)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	chatHandler := handler.NewChatHandler(chatService, tenantService)
	tenantHandler := handler.NewTenantHandler(tenantService)
	uploadHandler := handler.NewUploadHandler(indexService, cfg.MinIO)

	r.GET("/health", handler.Health)
	r.POST("/tenant/create", tenantHandler.Create)
	r.POST("/upload", uploadHandler.Upload)
	r.GET("/chat/ws/:token", chatHandler.HandleWS)

	authed := r.Group("/")
	authed.Use(middleware.TenantAuth(tenantService))
	{
		authed.POST("/chat", chatHandler.Chat)
		authed.POST("/chat/stream", chatHandler.ChatStream)
		authed.POST("/upload/index", uploadHandler.UploadAndIndex)
	}

	// 8. 启动 HTTP 服务器并实现优雅停机
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
