// Package model 包含了应用的数据模型定义。
package model

// ChatMessage 代表对话中的一条角色消息。
// 消息顺序即对话轮次顺序，构造后不再修改。
type ChatMessage struct {
	Role    string `json:"role"` // "system"、"user" 或 "assistant"
	Content string `json:"content"`
}

// ChatRequest 定义了聊天 API 的请求体结构。
type ChatRequest struct {
	Messages []ChatMessage `json:"messages" binding:"required"`
	Provider string        `json:"provider"`
	Stream   bool          `json:"stream"`
	RAG      *bool         `json:"rag"`
}

// RAGEnabled 返回本次请求是否启用检索增强，默认启用。
func (r ChatRequest) RAGEnabled() bool {
	if r.RAG == nil {
		return true
	}
	return *r.RAG
}

// ProviderName 返回请求指定的后端名称，默认 gemini。
func (r ChatRequest) ProviderName() string {
	if r.Provider == "" {
		return "gemini"
	}
	return r.Provider
}
