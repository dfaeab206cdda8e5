package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/pkg/embedding"
	"gqx-gateway-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
)

// RetrievalService 对向量库做租户隔离的相似度检索。
// 检索是尽力而为的：任何失败只会让本次增强退化为空结果，
// 不会中断请求。
type RetrievalService interface {
	Query(ctx context.Context, text string, topK int, tenantID string) []model.RetrievedDocument
}

type retrievalService struct {
	embeddingClient embedding.Client
	esClient        *elasticsearch.Client
	indexName       string
}

// NewRetrievalService 创建一个新的 RetrievalService 实例。
func NewRetrievalService(embeddingClient embedding.Client, esClient *elasticsearch.Client, indexName string) RetrievalService {
	return &retrievalService{
		embeddingClient: embeddingClient,
		esClient:        esClient,
		indexName:       indexName,
	}
}

// Query 向量化查询文本后在索引上做 kNN 检索，按 tenant_id 过滤。
// 所有错误路径统一返回空结果并记录告警。
func (s *retrievalService) Query(ctx context.Context, text string, topK int, tenantID string) []model.RetrievedDocument {
	queryVector, err := s.embeddingClient.CreateEmbedding(ctx, text)
	if err != nil {
		log.Warnf("检索降级: 向量化查询失败: %v", err)
		return nil
	}

	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   queryVector,
		"k":              topK,
		"num_candidates": topK * 10,
	}
	if tenantID != "" {
		// 租户隔离：带租户过滤的查询绝不能命中其他租户的文档
		knn["filter"] = map[string]interface{}{
			"term": map[string]interface{}{"tenant_id": tenantID},
		}
	}
	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": topK,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		log.Warnf("检索降级: 序列化查询失败: %v", err)
		return nil
	}

	res, err := s.esClient.Search(
		s.esClient.Search.WithContext(ctx),
		s.esClient.Search.WithIndex(s.indexName),
		s.esClient.Search.WithBody(&buf),
	)
	if err != nil {
		log.Warnf("检索降级: Elasticsearch 查询失败: %v", err)
		return nil
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Warnf("检索降级: Elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(body))
		return nil
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.EsDocument `json:"_source"`
				Score  float64          `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		log.Warnf("检索降级: 解析 Elasticsearch 响应失败: %v", err)
		return nil
	}

	results := make([]model.RetrievedDocument, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		if tenantID != "" && hit.Source.TenantID != tenantID {
			// 双保险：过滤子句失效也不泄露跨租户文档
			continue
		}
		results = append(results, model.RetrievedDocument{
			Document: hit.Source.TextContent,
			Metadata: map[string]string{
				"tenant_id": hit.Source.TenantID,
				"vector_id": hit.Source.VectorID,
			},
			Score: hit.Score,
		})
	}
	log.Infof("检索命中 %d 条文档 (tenant=%s)", len(results), tenantID)
	return results
}
