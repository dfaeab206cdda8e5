// Package tasks 定义了发送到索引队列的任务结构。
package tasks

// IndexTask 代表一批待向量化入库的文档。
// IDs 与 Texts 等长，且在同一批内唯一。
type IndexTask struct {
	Texts    []string `json:"texts"`
	IDs      []string `json:"ids"`
	TenantID string   `json:"tenant_id"`
}
