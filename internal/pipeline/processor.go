// Package pipeline 定义了文档向量化入库的核心流程。
package pipeline

import (
	"context"
	"fmt"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/pkg/embedding"
	"gqx-gateway-go/pkg/es"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/tasks"
)

// DocumentUpserter 是向量文档写入后端的窄接口。
type DocumentUpserter interface {
	Upsert(ctx context.Context, indexName string, doc model.EsDocument) error
}

// esUpserter 将文档写入 Elasticsearch。
type esUpserter struct{}

// NewESUpserter 创建一个 Elasticsearch 写入后端。
func NewESUpserter() DocumentUpserter {
	return esUpserter{}
}

func (esUpserter) Upsert(ctx context.Context, indexName string, doc model.EsDocument) error {
	return es.IndexDocument(ctx, indexName, doc)
}

// Processor 封装了索引任务处理的所有依赖和逻辑。
// 后台 worker 与同步回退路径共用同一个实现。
type Processor struct {
	embeddingClient embedding.Client
	store           DocumentUpserter
	esCfg           config.ElasticsearchConfig
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(embeddingClient embedding.Client, store DocumentUpserter, esCfg config.ElasticsearchConfig) *Processor {
	return &Processor{
		embeddingClient: embeddingClient,
		store:           store,
		esCfg:           esCfg,
	}
}

// Process 按提交顺序逐条向量化并写入检索索引。
// 文档标识作为 ES DocumentID，重复处理等价于覆盖写。
func (p *Processor) Process(ctx context.Context, task tasks.IndexTask) error {
	if len(task.IDs) != len(task.Texts) {
		return fmt.Errorf("索引任务非法: ids=%d, texts=%d", len(task.IDs), len(task.Texts))
	}

	for i, text := range task.Texts {
		vector, err := p.embeddingClient.CreateEmbedding(ctx, text)
		if err != nil {
			return fmt.Errorf("向量化文档 '%s' 失败: %w", task.IDs[i], err)
		}

		doc := model.EsDocument{
			VectorID:    task.IDs[i],
			TextContent: text,
			Vector:      vector,
			TenantID:    task.TenantID,
		}
		if err := p.store.Upsert(ctx, p.esCfg.IndexName, doc); err != nil {
			return fmt.Errorf("写入文档 '%s' 失败: %w", task.IDs[i], err)
		}
	}

	log.Infof("索引任务完成: tenant=%s, docs=%d", task.TenantID, len(task.Texts))
	return nil
}
