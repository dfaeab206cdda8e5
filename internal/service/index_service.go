package service

import (
	"context"
	"errors"
	"fmt"

	"gqx-gateway-go/pkg/kafka"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/tasks"
)

// Receipt 是一次入队的回执，两条路径返回相同的形状，
// 调用方无需感知走的是哪条路径。
type Receipt struct {
	Accepted int    `json:"accepted"`
	Mode     string `json:"mode"` // "queued" 或 "inline"
}

// IndexProducer 是持久化队列的窄接口，由 Kafka 生产者实现。
type IndexProducer interface {
	ProduceIndexTask(ctx context.Context, task tasks.IndexTask) error
}

// IndexService 负责文档的异步索引入队，带同步回退。
type IndexService interface {
	Enqueue(ctx context.Context, texts, ids []string, tenantID string) (Receipt, error)
}

// NewIndexService 在构造期一次性选定入队策略：配置了队列则异步入队，
// 否则同步入库。两个实现共享同一个回执形状。
func NewIndexService(producer IndexProducer, upserter kafka.TaskProcessor) IndexService {
	if producer != nil {
		return &queueIndexService{producer: producer, fallback: upserter}
	}
	return &directIndexService{upserter: upserter}
}

// buildTask 规整并校验一批索引输入。ids 缺省时按位置补齐。
func buildTask(texts, ids []string, tenantID string) (tasks.IndexTask, error) {
	if len(texts) == 0 {
		return tasks.IndexTask{}, errors.New("没有可索引的文本")
	}
	if len(ids) == 0 {
		ids = make([]string, len(texts))
		for i := range texts {
			ids[i] = fmt.Sprintf("doc_%d", i)
		}
	}
	if len(ids) != len(texts) {
		return tasks.IndexTask{}, errors.New("ids 与 texts 数量不一致")
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return tasks.IndexTask{}, fmt.Errorf("批次内重复的文档标识: %s", id)
		}
		seen[id] = struct{}{}
	}
	return tasks.IndexTask{Texts: texts, IDs: ids, TenantID: tenantID}, nil
}

// queueIndexService 将任务序列化后写入持久化队列，立即返回回执；
// 真正的向量化入库由后台 worker 异步完成。
type queueIndexService struct {
	producer IndexProducer
	fallback kafka.TaskProcessor
}

func (s *queueIndexService) Enqueue(ctx context.Context, texts, ids []string, tenantID string) (Receipt, error) {
	task, err := buildTask(texts, ids, tenantID)
	if err != nil {
		return Receipt{}, err
	}

	if err := s.producer.ProduceIndexTask(ctx, task); err != nil {
		// 队列不可用不是错误：静默降级为同步入库
		log.Warnf("索引队列不可用，降级为同步入库 (tenant=%s): %v", tenantID, err)
		if err := s.fallback.Process(ctx, task); err != nil {
			return Receipt{}, fmt.Errorf("同步入库失败: %w", err)
		}
		return Receipt{Accepted: len(task.IDs), Mode: "inline"}, nil
	}

	return Receipt{Accepted: len(task.IDs), Mode: "queued"}, nil
}

// directIndexService 在没有队列的部署中同步完成向量化入库。
type directIndexService struct {
	upserter kafka.TaskProcessor
}

func (s *directIndexService) Enqueue(ctx context.Context, texts, ids []string, tenantID string) (Receipt, error) {
	task, err := buildTask(texts, ids, tenantID)
	if err != nil {
		return Receipt{}, err
	}

	if err := s.upserter.Process(ctx, task); err != nil {
		return Receipt{}, fmt.Errorf("同步入库失败: %w", err)
	}
	return Receipt{Accepted: len(task.IDs), Mode: "inline"}, nil
}
