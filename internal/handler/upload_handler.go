package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/middleware"
	"gqx-gateway-go/internal/service"
	"gqx-gateway-go/pkg/log"
	"gqx-gateway-go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文件上传与上传即索引的请求。
type UploadHandler struct {
	indexService service.IndexService
	minioCfg     config.MinIOConfig
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(indexService service.IndexService, minioCfg config.MinIOConfig) *UploadHandler {
	return &UploadHandler{
		indexService: indexService,
		minioCfg:     minioCfg,
	}
}

// readUpload 读取 multipart 文件内容并返回规整后的文件名。
func readUpload(c *gin.Context) (string, []byte, string, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return "", nil, "", err
	}

	f, err := fileHeader.Open()
	if err != nil {
		return "", nil, "", err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return "", nil, "", err
	}

	// 只保留文件名部分，防止路径穿越
	filename := filepath.Base(fileHeader.Filename)
	return filename, content, fileHeader.Header.Get("Content-Type"), nil
}

// Upload 处理未认证的裸上传：文件内容写入对象存储。
func (h *UploadHandler) Upload(c *gin.Context) {
	filename, content, contentType, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	if err := storage.PutObject(c.Request.Context(), h.minioCfg.BucketName, filename, content, contentType); err != nil {
		log.Error("上传文件写入对象存储失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"filename": filename, "bucket": h.minioCfg.BucketName})
}

// UploadAndIndex 处理认证后的上传：保存文件并将其内容提交到
// 租户的索引队列。
func (h *UploadHandler) UploadAndIndex(c *gin.Context) {
	filename, content, contentType, err := readUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	tenantID := middleware.TenantID(c)

	if err := storage.PutObject(c.Request.Context(), h.minioCfg.BucketName, filename, content, contentType); err != nil {
		log.Error("上传文件写入对象存储失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 朴素文本提取：按 UTF-8 解码并丢弃非法字节，空内容退化为文件名
	text := strings.ToValidUTF8(string(content), "")
	if strings.TrimSpace(text) == "" {
		text = filename
	}

	receipt, err := h.indexService.Enqueue(c.Request.Context(), []string{text}, []string{filename}, tenantID)
	if err != nil {
		log.Error("提交索引任务失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": filename,
		"accepted": receipt.Accepted,
		"mode":     receipt.Mode,
	})
}
