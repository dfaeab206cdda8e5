package service

import (
	"context"
	"testing"
	"time"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/pkg/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuota struct {
	allow bool
	calls int
}

func (f *fakeQuota) Admit(context.Context, string, time.Time) bool {
	f.calls++
	return f.allow
}

type fakeRetrieval struct {
	docs       []model.RetrievedDocument
	calls      int
	lastQuery  string
	lastTopK   int
	lastTenant string
}

func (f *fakeRetrieval) Query(_ context.Context, text string, topK int, tenantID string) []model.RetrievedDocument {
	f.calls++
	f.lastQuery = text
	f.lastTopK = topK
	f.lastTenant = tenantID
	return f.docs
}

func newTestChatService(quota *fakeQuota, retrieval *fakeRetrieval) ChatService {
	// 后端全部不配置：ollama 在无服务地址时直接降级为占位文本，
	// 测试不会发起任何网络调用
	registry := provider.NewRegistry(config.ProvidersConfig{})
	return NewChatService(quota, retrieval, registry, 3)
}

func chatReq(provider string, content string) model.ChatRequest {
	return model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "user", Content: content}},
		Provider: provider,
	}
}

func TestCompleteRejectsWhenRateLimited(t *testing.T) {
	quota := &fakeQuota{allow: false}
	retrieval := &fakeRetrieval{}
	svc := newTestChatService(quota, retrieval)

	_, err := svc.Complete(context.Background(), "tenant-a", chatReq("ollama", "hi"))

	assert.ErrorIs(t, err, ErrRateLimited)
	// 被限流的请求不应触发检索
	assert.Zero(t, retrieval.calls)
}

func TestCompleteRejectsUnknownProviderBeforeRetrieval(t *testing.T) {
	quota := &fakeQuota{allow: true}
	retrieval := &fakeRetrieval{}
	svc := newTestChatService(quota, retrieval)

	_, err := svc.Complete(context.Background(), "tenant-a", chatReq("made-up", "hi"))

	assert.ErrorIs(t, err, ErrUnknownProvider)
	assert.Zero(t, retrieval.calls)
}

func TestCompleteRunsRetrievalWithLastUserMessage(t *testing.T) {
	quota := &fakeQuota{allow: true}
	retrieval := &fakeRetrieval{docs: []model.RetrievedDocument{{Document: "X is a thing."}}}
	svc := newTestChatService(quota, retrieval)

	req := model.ChatRequest{
		Messages: []model.ChatMessage{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
			{Role: "user", Content: "What is X?"},
		},
		Provider: "ollama",
	}

	text, err := svc.Complete(context.Background(), "tenant-a", req)

	require.NoError(t, err)
	assert.Equal(t, 1, retrieval.calls)
	assert.Equal(t, "What is X?", retrieval.lastQuery)
	assert.Equal(t, 3, retrieval.lastTopK)
	assert.Equal(t, "tenant-a", retrieval.lastTenant)
	// 未配置的后端以占位文本降级，编排层不报错
	assert.Equal(t, "(ollama) server url not configured", text)
}

func TestCompleteSkipsRetrievalWhenRAGDisabled(t *testing.T) {
	quota := &fakeQuota{allow: true}
	retrieval := &fakeRetrieval{}
	svc := newTestChatService(quota, retrieval)

	disabled := false
	req := chatReq("ollama", "hi")
	req.RAG = &disabled

	_, err := svc.Complete(context.Background(), "tenant-a", req)

	require.NoError(t, err)
	assert.Zero(t, retrieval.calls)
}

func TestCompleteSkipsRetrievalWithoutUserMessage(t *testing.T) {
	quota := &fakeQuota{allow: true}
	retrieval := &fakeRetrieval{}
	svc := newTestChatService(quota, retrieval)

	req := model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "system", Content: "rules"}},
		Provider: "ollama",
	}

	_, err := svc.Complete(context.Background(), "tenant-a", req)

	require.NoError(t, err)
	assert.Zero(t, retrieval.calls)
}

func TestStreamSharesPreparationWithComplete(t *testing.T) {
	quota := &fakeQuota{allow: true}
	retrieval := &fakeRetrieval{}
	svc := newTestChatService(quota, retrieval)

	ch, err := svc.Stream(context.Background(), "tenant-a", chatReq("ollama", "hi"))
	require.NoError(t, err)

	var got string
	for chunk := range ch {
		got += chunk
	}
	// 流式分块拼接结果等于一次性应答
	assert.Equal(t, "(ollama) server url not configured", got)

	_, err = svc.Stream(context.Background(), "tenant-a", chatReq("nope", "hi"))
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestDefaultProviderIsGemini(t *testing.T) {
	req := model.ChatRequest{Messages: []model.ChatMessage{{Role: "user", Content: "hi"}}}
	assert.Equal(t, "gemini", req.ProviderName())
	assert.True(t, req.RAGEnabled())
}
