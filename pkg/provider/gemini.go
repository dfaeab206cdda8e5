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
	"gqx-gateway-go/pkg/log"
)

// defaultGeminiEndpoint 是 Generative API 的默认地址，可被配置覆盖。
const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta2/models/text-bison-001:generate"

// geminiClient 是云端托管后端。凭证解析走链式回退：先尝试工作负载
// 身份等委托凭证，失败后回退到静态 API key。
type geminiClient struct {
	cfg     config.GeminiConfig
	client  *http.Client
	sources []CredentialSource
}

func newGeminiClient(cfg config.GeminiConfig) Client {
	return &geminiClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 120 * time.Second},
		sources: []CredentialSource{
			newMetadataTokenSource(cfg.MetadataEndpoint),
			&apiKeySource{queryKey: "key", key: cfg.APIKey},
		},
	}
}

func (c *geminiClient) endpoint() string {
	if c.cfg.Endpoint != "" {
		return c.cfg.Endpoint
	}
	return defaultGeminiEndpoint
}

// noCredentialsReply 是凭证链全部失败时的占位应答文本。
const noCredentialsReply = "(gemini) no credentials available; configure workload identity or set the gemini API key"

// Send 产出一条完整应答。鉴权与请求失败均以占位文本降级返回。
func (c *geminiClient) Send(ctx context.Context, messages []Message) Reply {
	cred, source, ok := resolveFirst(ctx, c.sources)
	if !ok {
		return Reply{Text: noCredentialsReply, Degraded: true}
	}
	log.Infof("gemini 凭证来源: %s", source)

	req, err := c.newRequest(ctx, cred, messages)
	if err != nil {
		return Reply{Text: fmt.Sprintf("(gemini) request failed: %v", err), Degraded: true}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{Text: fmt.Sprintf("(gemini) request failed: %v", err), Degraded: true}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return Reply{Text: fmt.Sprintf("(gemini) HTTP %d: %s", resp.StatusCode, string(body)), Degraded: true}
	}

	return Reply{Text: extractGeminiText(body)}
}

// Stream 以 HTTP 流式读取应答分块。流开启后的失败通过单个
// "(stream-error)" 诊断分块上报并结束序列。
func (c *geminiClient) Stream(ctx context.Context, messages []Message) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)

		cred, _, ok := resolveFirst(ctx, c.sources)
		if !ok {
			emit(ctx, ch, noCredentialsReply)
			return
		}

		req, err := c.newRequest(ctx, cred, messages)
		if err != nil {
			emit(ctx, ch, fmt.Sprintf("(stream-error) %v", err))
			return
		}

		resp, err := c.client.Do(req)
		if err != nil {
			emit(ctx, ch, fmt.Sprintf("(stream-error) %v", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			emit(ctx, ch, fmt.Sprintf("(gemini) HTTP %d: %s", resp.StatusCode, string(body)))
			return
		}

		buf := make([]byte, 256)
		// 按字节读取可能把多字节字符切在读取边界上，结尾的残缺
		// rune 先压着，等下一次读取补齐后再下发
		var pending []byte
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				pending = append(pending, buf[:n]...)
				if cut := completeRuneLen(pending); cut > 0 {
					if !emit(ctx, ch, string(pending[:cut])) {
						return
					}
					pending = pending[cut:]
				}
			}
			if err == io.EOF {
				if len(pending) > 0 {
					emit(ctx, ch, string(pending))
				}
				return
			}
			if err != nil {
				emit(ctx, ch, fmt.Sprintf("(stream-error) %v", err))
				return
			}
		}
	}()
	return ch
}

func (c *geminiClient) newRequest(ctx context.Context, cred Credential, messages []Message) (*http.Request, error) {
	body, err := json.Marshal(map[string]string{"prompt": lastContent(messages)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if cred.AuthHeader != "" {
		req.Header.Set("Authorization", cred.AuthHeader)
	}
	if cred.QueryKey != "" {
		q := req.URL.Query()
		q.Set(cred.QueryKey, cred.QueryValue)
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

// extractGeminiText 兼容 Generative API 的几种已知响应形态。
func extractGeminiText(body []byte) string {
	var j map[string]json.RawMessage
	if err := json.Unmarshal(body, &j); err != nil {
		return string(body)
	}

	if raw, ok := j["candidates"]; ok {
		var candidates []map[string]string
		if err := json.Unmarshal(raw, &candidates); err == nil && len(candidates) > 0 {
			c := candidates[0]
			for _, key := range []string{"output", "content", "text"} {
				if v := c[key]; v != "" {
					return v
				}
			}
		}
	}
	for _, key := range []string{"output", "result", "text"} {
		if raw, ok := j[key]; ok {
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s
			}
			return string(raw)
		}
	}
	return string(body)
}
