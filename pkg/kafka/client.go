// Package kafka 提供了索引队列的生产者与消费者。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process an index task.
// This decouples the consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.IndexTask) error
}

// Producer 封装了向索引队列写入任务的能力。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建一个索引队列生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// ProduceIndexTask 发送一个索引任务到队列。单 topic 单分区内保持 FIFO。
func (p *Producer) ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.TenantID),
		Value: taskBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// fetchTimeout 是每轮取消息的有界等待时长。
const fetchTimeout = 5 * time.Second

// retryBackoff 是任务处理失败后的重试间隔。
const retryBackoff = time.Second

// StartConsumer 启动索引队列消费循环，直到 ctx 取消才返回。
// 处理失败时记录日志并在退避后继续，不会让 worker 退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("索引 worker 已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		if ctx.Err() != nil {
			return
		}

		fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
		m, err := r.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				// 有界等待超时，空转一轮
				continue
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			time.Sleep(retryBackoff)
			continue
		}

		var task tasks.IndexTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析索引任务: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理索引任务: tenant=%s, docs=%d", task.TenantID, len(task.Texts))
		if err := processor.Process(ctx, task); err != nil {
			// 不提交 offset，退避后由 Kafka 重投
			log.Errorf("处理索引任务失败: tenant=%s, error: %v", task.TenantID, err)
			time.Sleep(retryBackoff)
			continue
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
		}
	}
}
