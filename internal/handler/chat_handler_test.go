package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/provider"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChatService struct {
	reply  string
	chunks []string
	err    error
}

func (f *fakeChatService) Complete(context.Context, string, model.ChatRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChatService) Stream(context.Context, string, model.ChatRequest) (<-chan string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan string, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func newChatRouter(svc *fakeChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChatHandler(svc, nil)
	r := gin.New()
	r.POST("/chat", h.Chat)
	r.POST("/chat/stream", h.ChatStream)
	return r
}

// closeNotifyRecorder 给 httptest.ResponseRecorder 补上 http.CloseNotifier，
// gin 的 Context.Stream 需要它。
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func postJSON(t *testing.T, r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(closeNotifyRecorder{w}, req)
	return w
}

const validChatBody = `{"messages":[{"role":"user","content":"hi"}]}`

func TestChatSuccess(t *testing.T) {
	r := newChatRouter(&fakeChatService{reply: "hello there"})

	w := postJSON(t, r, "/chat", validChatBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reply":"hello there"}`, w.Body.String())
}

func TestChatRejectionStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"rate limited", service.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown provider", service.ErrUnknownProvider, http.StatusBadRequest},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newChatRouter(&fakeChatService{err: tt.err})
			w := postJSON(t, r, "/chat", validChatBody)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestChatInvalidPayload(t *testing.T) {
	r := newChatRouter(&fakeChatService{reply: "unused"})

	w := postJSON(t, r, "/chat", `{"messages":null}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, r, "/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamRelaysChunks(t *testing.T) {
	r := newChatRouter(&fakeChatService{chunks: []string{"Hel", "lo ", "world"}})

	w := postJSON(t, r, "/chat/stream", validChatBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "Hello world", w.Body.String())
}

func TestChatStreamRejectsBeforeStreaming(t *testing.T) {
	r := newChatRouter(&fakeChatService{err: service.ErrRateLimited})

	w := postJSON(t, r, "/chat/stream", validChatBody)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

type wsTenantService struct{}

func (wsTenantService) Create(string) (*model.TenantCredentials, error) {
	return nil, errors.New("not implemented")
}

func (wsTenantService) Resolve(credential string) (string, error) {
	if credential == "good-token" {
		return "tenant-a", nil
	}
	return "", nil
}

type openQuota struct{}

func (openQuota) Admit(context.Context, string, time.Time) bool { return true }

type emptyRetrieval struct{}

func (emptyRetrieval) Query(context.Context, string, int, string) []model.RetrievedDocument {
	return nil
}

// TestHandleWSRelaysMultibyteReply 走完整链路：真实后端合成流式分块，
// 经 WebSocket 逐帧 JSON 转发。每个帧必须是合法 UTF-8，重组后的
// 应答必须与后端原始应答逐字节相等，多字节字符不能在帧边界上被打碎。
func TestHandleWSRelaysMultibyteReply(t *testing.T) {
	reply := strings.Repeat("这是一段很长的中文回复。", 12)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": reply},
		})
	}))
	defer backend.Close()

	registry := provider.NewRegistry(config.ProvidersConfig{
		Ollama: config.OllamaConfig{URL: backend.URL, Model: "test"},
	})
	chatService := service.NewChatService(openQuota{}, emptyRetrieval{}, registry, 3)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewChatHandler(chatService, wsTenantService{})
	r.GET("/chat/ws/:token", h.HandleWS)

	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws/good-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	req := model.ChatRequest{
		Messages: []model.ChatMessage{{Role: "user", Content: "你好"}},
		Provider: "ollama",
	}
	require.NoError(t, conn.WriteJSON(req))

	var got strings.Builder
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))

		if frame["type"] == "completion" {
			break
		}
		chunk, ok := frame["chunk"].(string)
		require.True(t, ok, "unexpected frame: %v", frame)
		assert.True(t, utf8.ValidString(chunk), "frame is not valid UTF-8: %q", chunk)
		assert.NotContains(t, chunk, "�")
		got.WriteString(chunk)
	}

	assert.Equal(t, reply, got.String())
}
