package service

import (
	"strings"

	"gqx-gateway-go/internal/model"
)

// ragPromptPrefix 是检索上下文注入 system 消息时的固定模板前缀。
const ragPromptPrefix = "Relevant documents:\n"

// LastUserContent 从最新到最旧扫描对话，返回最后一条 user 消息的内容。
// 不存在 user 消息时返回 false，检索增强随之跳过。
func LastUserContent(messages []model.ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content, true
		}
	}
	return "", false
}

// BuildContext 将检索到的文档合并进对话：把所有文档文本用双换行
// 拼接后，作为单条 system 消息插到原始序列最前面，其余顺序不变。
// 没有检索结果时原样返回输入序列。
func BuildContext(messages []model.ChatMessage, docs []model.RetrievedDocument) []model.ChatMessage {
	if len(docs) == 0 {
		return messages
	}

	texts := make([]string, 0, len(docs))
	for _, d := range docs {
		texts = append(texts, d.Document)
	}

	augmented := make([]model.ChatMessage, 0, len(messages)+1)
	augmented = append(augmented, model.ChatMessage{
		Role:    "system",
		Content: ragPromptPrefix + strings.Join(texts, "\n\n"),
	})
	augmented = append(augmented, messages...)
	return augmented
}
