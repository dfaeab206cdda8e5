package model

// EsDocument 代表存储在 Elasticsearch 中的文档结构。
type EsDocument struct {
	VectorID    string    `json:"vector_id"`
	TextContent string    `json:"text_content"`
	Vector      []float32 `json:"vector"`
	TenantID    string    `json:"tenant_id"`
}

// RetrievedDocument 代表一次检索命中的文档，供上下文装配使用。
type RetrievedDocument struct {
	Document string            `json:"document"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}
