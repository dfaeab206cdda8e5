package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"gqx-gateway-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(config.ProvidersConfig{})

	for _, name := range []string{"gemini", "openai", "ollama"} {
		client, ok := registry.Resolve(name)
		assert.True(t, ok, name)
		assert.NotNil(t, client, name)
	}

	// 名称大小写不敏感
	_, ok := registry.Resolve("Gemini")
	assert.True(t, ok)

	_, ok = registry.Resolve("made-up")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"gemini", "openai", "ollama"}, registry.Names())
}

func TestEmitAbandonsWriteOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 无人接收的通道：取消后 emit 必须放弃写入而不是阻塞
	ch := make(chan string)
	assert.False(t, emit(ctx, ch, "chunk"))
}

func TestSyntheticStreamMatchesSend(t *testing.T) {
	content := strings.Repeat("abcdefgh", 20) // 160 字节，跨 3 个分块
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": content},
		})
	}))
	defer srv.Close()

	client := newOllamaClient(config.OllamaConfig{URL: srv.URL, Model: "test"})

	reply := client.Send(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.False(t, reply.Degraded)
	require.Equal(t, content, reply.Text)

	var chunks []string
	for chunk := range client.Stream(context.Background(), []Message{{Role: "user", Content: "hi"}}) {
		chunks = append(chunks, chunk)
	}

	// 分块拼接结果等于一次性应答，每块不超过固定大小
	assert.Equal(t, content, strings.Join(chunks, ""))
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), streamChunkSize)
	}
}

func TestSyntheticStreamKeepsRunesIntact(t *testing.T) {
	// 每个汉字 3 字节，64 字节的分块边界必然落在字符中间
	content := strings.Repeat("这是一段很长的中文回复。", 12)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": content},
		})
	}))
	defer srv.Close()

	client := newOllamaClient(config.OllamaConfig{URL: srv.URL, Model: "test"})

	var chunks []string
	for chunk := range client.Stream(context.Background(), []Message{{Role: "user", Content: "你好"}}) {
		chunks = append(chunks, chunk)
	}

	assert.Equal(t, content, strings.Join(chunks, ""))
	for i, c := range chunks {
		assert.True(t, utf8.ValidString(c), "chunk %d is not valid UTF-8: %q", i, c)
		assert.LessOrEqual(t, len(c), streamChunkSize)
	}
}

func TestCompleteRuneLen(t *testing.T) {
	whole := []byte("中文")
	assert.Equal(t, len(whole), completeRuneLen(whole))

	// 结尾残缺的多字节序列被截掉
	cutoff := whole[:len(whole)-1]
	assert.Equal(t, 3, completeRuneLen(cutoff))

	// 纯 ASCII 与非法 UTF-8 都按全长返回
	assert.Equal(t, 5, completeRuneLen([]byte("hello")))
	assert.Equal(t, 3, completeRuneLen([]byte{0xff, 0xfe, 0xfd}))
}

func TestOllamaUnconfiguredDegrades(t *testing.T) {
	client := newOllamaClient(config.OllamaConfig{})

	reply := client.Send(context.Background(), nil)
	assert.True(t, reply.Degraded)
	assert.Equal(t, "(ollama) server url not configured", reply.Text)
}

func TestLastContent(t *testing.T) {
	assert.Equal(t, "", lastContent(nil))
	assert.Equal(t, "b", lastContent([]Message{{Content: "a"}, {Content: "b"}}))
}
