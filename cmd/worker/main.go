// Package main 是索引 worker 进程的入口点。
// worker 持续消费索引队列，将文档向量化后写入检索索引；
// 处理失败只会退避重试，不会让进程退出。
package main

import (
	"context"
	"os/signal"
	"syscall"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/pipeline"
	"gqx-gateway-go/pkg/embedding"
	"gqx-gateway-go/pkg/es"
	"gqx-gateway-go/pkg/kafka"
	"gqx-gateway-go/pkg/log"
)

func main() {
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	if cfg.Kafka.Brokers == "" {
		log.Fatalf("索引 worker 需要配置 kafka.brokers")
	}

	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Fatalf("es 初始化失败: %v", err)
	}

	embeddingClient := embedding.NewClient(cfg.Embedding)
	processor := pipeline.NewProcessor(embeddingClient, pipeline.NewESUpserter(), cfg.Elasticsearch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 消费循环阻塞到收到停机信号
	kafka.StartConsumer(ctx, cfg.Kafka, processor)
	log.Info("索引 worker 已退出")
}
