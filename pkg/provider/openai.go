package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gqx-gateway-go/internal/config"
)

// openaiClient 是第三方托管后端，走 OpenAI 兼容的 /chat/completions
// 接口，原生支持 SSE 流式应答。
type openaiClient struct {
	cfg    config.OpenAIConfig
	client *http.Client
}

func newOpenAIClient(cfg config.OpenAIConfig) Client {
	return &openaiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Send 产出一条完整应答。API key 未配置或请求失败时降级为占位文本。
func (c *openaiClient) Send(ctx context.Context, messages []Message) Reply {
	if c.cfg.APIKey == "" {
		return Reply{Text: "(openai) API key not set", Degraded: true}
	}

	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return Reply{Text: fmt.Sprintf("(openai) request failed: %v", err), Degraded: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Reply{Text: fmt.Sprintf("(openai) HTTP %d: %s", resp.StatusCode, string(body)), Degraded: true}
	}

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Reply{Text: fmt.Sprintf("(openai) bad response: %v", err), Degraded: true}
	}
	if len(out.Choices) == 0 {
		return Reply{Text: "(openai) empty completion", Degraded: true}
	}
	return Reply{Text: out.Choices[0].Message.Content}
}

// Stream 通过 SSE 转发增量分块（data: 行，[DONE] 哨兵结束）。
func (c *openaiClient) Stream(ctx context.Context, messages []Message) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)

		if c.cfg.APIKey == "" {
			emit(ctx, ch, "(openai) API key not set")
			return
		}

		resp, err := c.post(ctx, messages, true)
		if err != nil {
			emit(ctx, ch, fmt.Sprintf("(stream-error) %v", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			emit(ctx, ch, fmt.Sprintf("(openai) HTTP %d: %s", resp.StatusCode, string(body)))
			return
		}

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					emit(ctx, ch, fmt.Sprintf("(stream-error) %v", err))
				}
				return
			}

			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if strings.TrimSpace(data) == "[DONE]" {
				return
			}

			var chunk chatCompletionChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !emit(ctx, ch, content) {
					return
				}
			}
		}
	}()
	return ch
}

func (c *openaiClient) post(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	reqBody := chatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Stream:   stream,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	return c.client.Do(req)
}
