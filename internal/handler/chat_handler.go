// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"gqx-gateway-go/internal/middleware"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理聊天请求的三种下发方式：一次性、HTTP 流式、WebSocket。
type ChatHandler struct {
	chatService   service.ChatService
	tenantService service.TenantService
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, tenantService service.TenantService) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		tenantService: tenantService,
	}
}

// rejectChat 将编排层的硬拒绝映射为 HTTP 状态码。
func rejectChat(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	case errors.Is(err, service.ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
	default:
		log.Error("聊天请求处理失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Chat 处理一次性聊天请求。
func (h *ChatHandler) Chat(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	reply, err := h.chatService.Complete(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		rejectChat(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// ChatStream 处理流式聊天请求，将分块以 chunked 文本逐块转发。
// 客户端断开后 Stream 回调返回 false，请求上下文取消随之停掉
// 后端的分块生产。
func (h *ChatHandler) ChatStream(c *gin.Context) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}

	ch, err := h.chatService.Stream(c.Request.Context(), middleware.TenantID(c), req)
	if err != nil {
		rejectChat(c, err)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	c.Stream(func(w io.Writer) bool {
		chunk, ok := <-ch
		if !ok {
			return false
		}
		_, _ = w.Write([]byte(chunk))
		return true
	})
}

// HandleWS 处理 WebSocket 聊天连接：每个文本帧是一个聊天请求 JSON，
// 分块以 {"chunk": ...} 帧转发，流结束后发送 completion 通知帧。
func (h *ChatHandler) HandleWS(c *gin.Context) {
	tenantID, err := h.tenantService.Resolve(c.Param("token"))
	if err != nil || tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, tenant: %s", tenantID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			return
		}

		var req model.ChatRequest
		if err := json.Unmarshal(message, &req); err != nil || len(req.Messages) == 0 {
			writeWSJSON(conn, gin.H{"error": "invalid chat request"})
			continue
		}

		if !h.relayWS(c.Request.Context(), conn, tenantID, req) {
			return
		}
	}
}

// relayWS 将一次流式应答转发到 WebSocket 连接。
// 写失败说明客户端已断开：取消上下文并排空通道后结束连接。
func (h *ChatHandler) relayWS(parent context.Context, conn *websocket.Conn, tenantID string, req model.ChatRequest) bool {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	ch, err := h.chatService.Stream(ctx, tenantID, req)
	if err != nil {
		writeWSJSON(conn, gin.H{"error": err.Error()})
		return true
	}

	for chunk := range ch {
		if werr := writeWSJSON(conn, gin.H{"chunk": chunk}); werr != nil {
			cancel()
			for range ch {
			}
			return false
		}
	}

	writeWSJSON(conn, gin.H{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	})
	return true
}

func writeWSJSON(conn *websocket.Conn, payload gin.H) error {
	b, _ := json.Marshal(payload)
	return conn.WriteMessage(websocket.TextMessage, b)
}
