package service

import (
	"context"
	"errors"
	"time"

	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/provider"
)

// 编排层的硬拒绝错误。认证错误在中间件处理，这里只剩配额与
// 未知后端两类；其余所有异常都降级为应答内容的一部分。
var (
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrUnknownProvider = errors.New("unknown provider")
)

// ChatService 编排单个聊天请求：配额 → 后端解析 → 可选检索 →
// 上下文装配 → 派发。
type ChatService interface {
	// Complete 走一次性应答路径，返回完整回复文本。
	Complete(ctx context.Context, tenantID string, req model.ChatRequest) (string, error)
	// Stream 走流式路径，返回惰性分块序列；通道关闭即流结束。
	Stream(ctx context.Context, tenantID string, req model.ChatRequest) (<-chan string, error)
}

type chatService struct {
	quota     QuotaService
	retrieval RetrievalService
	registry  *provider.Registry
	topK      int
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(quota QuotaService, retrieval RetrievalService, registry *provider.Registry, topK int) ChatService {
	return &chatService{
		quota:     quota,
		retrieval: retrieval,
		registry:  registry,
		topK:      topK,
	}
}

// prepare 执行两条派发路径共同的前置步骤。
// 后端名称解析是纯查表，放在检索之前：未知后端必须在发起任何
// 网络调用之前拒绝。
func (s *chatService) prepare(ctx context.Context, tenantID string, req model.ChatRequest) (provider.Client, []provider.Message, error) {
	if !s.quota.Admit(ctx, tenantID, time.Now()) {
		return nil, nil, ErrRateLimited
	}

	client, ok := s.registry.Resolve(req.ProviderName())
	if !ok {
		return nil, nil, ErrUnknownProvider
	}

	messages := req.Messages
	if req.RAGEnabled() {
		if query, found := LastUserContent(messages); found {
			// 检索是尽力而为的，失败时 docs 为空，装配原样透传
			docs := s.retrieval.Query(ctx, query, s.topK, tenantID)
			messages = BuildContext(messages, docs)
		}
	}

	out := make([]provider.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return client, out, nil
}

// Complete 等待后端产出一条完整回复。后端降级以占位文本体现在
// 回复内容中，不作为错误返回。
func (s *chatService) Complete(ctx context.Context, tenantID string, req model.ChatRequest) (string, error) {
	client, messages, err := s.prepare(ctx, tenantID, req)
	if err != nil {
		return "", err
	}

	reply := client.Send(ctx, messages)
	if reply.Degraded {
		log.Warnf("后端降级应答 (tenant=%s, provider=%s)", tenantID, req.ProviderName())
	}
	return reply.Text, nil
}

// Stream 打开后端的惰性分块序列。调用方取消 ctx 后序列停止产出。
func (s *chatService) Stream(ctx context.Context, tenantID string, req model.ChatRequest) (<-chan string, error) {
	client, messages, err := s.prepare(ctx, tenantID, req)
	if err != nil {
		return nil, err
	}
	return client.Stream(ctx, messages), nil
}
