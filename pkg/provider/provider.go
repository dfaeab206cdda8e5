// Package provider 抽象了多个可互换的生成后端，提供统一的一次性
// 应答与流式应答契约。
package provider

import (
	"context"
	"strings"
	"unicode/utf8"

	"gqx-gateway-go/internal/config"
)

// Message 表示一条发送给后端的角色消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reply 是一次性应答的结果。后端鉴权失败、请求失败等降级情况不作为
// 错误抛出，而是携带占位文本并置 Degraded，由调用方作为内容透出。
type Reply struct {
	Text     string
	Degraded bool
}

// Client 是生成后端的统一契约。
//
// Stream 返回一个惰性、有限、不可重放的分块序列；通道关闭即流结束。
// 流开始后发生的请求级失败通过单个 "(stream-error) ..." 诊断分块上报，
// 不会跨越流边界抛错。调用方取消 ctx 后不再产生新的分块。
type Client interface {
	Send(ctx context.Context, messages []Message) Reply
	Stream(ctx context.Context, messages []Message) <-chan string
}

// Factory 按配置构造一个后端客户端。
type Factory func() Client

// Registry 是后端名称到构造器的不可变映射，启动时构建一次，
// 以依赖注入方式传给编排层。
type Registry struct {
	factories map[string]Factory
}

// NewRegistry 根据配置构建后端注册表。
func NewRegistry(cfg config.ProvidersConfig) *Registry {
	gemini := cfg.Gemini
	openai := cfg.OpenAI
	ollama := cfg.Ollama
	return &Registry{
		factories: map[string]Factory{
			"gemini": func() Client { return newGeminiClient(gemini) },
			"openai": func() Client { return newOpenAIClient(openai) },
			"ollama": func() Client { return newOllamaClient(ollama) },
		},
	}
}

// Resolve 按名称查找后端并构造客户端。未知名称返回 false，由调用方
// 作为客户端错误处理。
func (r *Registry) Resolve(name string) (Client, bool) {
	f, ok := r.factories[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names 返回所有已注册的后端名称。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// streamChunkSize 是合成流式分块的固定大小，对调用方不可见。
const streamChunkSize = 64

// lastContent 取最后一条消息的内容作为主提示词。
func lastContent(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}

// emit 向通道写入一个分块，调用方取消时放弃写入。
func emit(ctx context.Context, ch chan<- string, chunk string) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// completeRuneLen 返回 b 中不含结尾残缺 UTF-8 序列的前缀长度。
// 结尾不是合法 UTF-8 的内容原样保留，按全长返回。
func completeRuneLen(b []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		if utf8.RuneStart(b[len(b)-i]) {
			if utf8.FullRune(b[len(b)-i:]) {
				return len(b)
			}
			return len(b) - i
		}
	}
	return len(b)
}

// syntheticStream 将一次性应答切成固定大小的分块序列，供没有原生
// 流式能力的后端合成流式契约。分块在 rune 边界上切开：多字节字符
// 不会被拆到两个分块里，每个分块都是合法的 UTF-8。分块拼接结果
// 等于完整应答。
func syntheticStream(ctx context.Context, ch chan<- string, text string) {
	for start := 0; start < len(text); {
		end := start + streamChunkSize
		if end >= len(text) {
			end = len(text)
		} else if cut := completeRuneLen([]byte(text[start:end])); cut > 0 {
			end = start + cut
		}
		if !emit(ctx, ch, text[start:end]) {
			return
		}
		start = end
	}
}
