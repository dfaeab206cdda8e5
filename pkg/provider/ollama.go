package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"gqx-gateway-go/internal/config"
)

// ollamaClient 是自托管模型后端，调用本地 Ollama 服务的 /api/chat。
// 没有原生流式能力，流式契约由一次性应答合成。
type ollamaClient struct {
	cfg    config.OllamaConfig
	client *http.Client
}

func newOllamaClient(cfg config.OllamaConfig) Client {
	return &ollamaClient{
		cfg: cfg,
		// 本地推理可能很慢，给足超时
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Send 产出一条完整应答。未配置服务地址时降级为占位文本。
func (c *ollamaClient) Send(ctx context.Context, messages []Message) Reply {
	if c.cfg.URL == "" {
		return Reply{Text: "(ollama) server url not configured", Degraded: true}
	}

	reqBody := ollamaChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   false,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Reply{Text: fmt.Sprintf("(ollama) request failed: %v", err), Degraded: true}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.URL+"/api/chat", bytes.NewReader(reqBytes))
	if err != nil {
		return Reply{Text: fmt.Sprintf("(ollama) request failed: %v", err), Degraded: true}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{Text: fmt.Sprintf("(ollama) request failed: %v", err), Degraded: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Reply{Text: fmt.Sprintf("(ollama) HTTP %d: %s", resp.StatusCode, string(body)), Degraded: true}
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{Text: fmt.Sprintf("(ollama) bad response: %v", err), Degraded: true}
	}
	return Reply{Text: out.Message.Content}
}

// Stream 合成流式应答：先取完整应答，再切成固定大小的分块。
func (c *ollamaClient) Stream(ctx context.Context, messages []Message) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		reply := c.Send(ctx, messages)
		syntheticStream(ctx, ch, reply.Text)
	}()
	return ch
}
