// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"trainvault-go/internal/middleware"
	"trainvault-go/internal/provider"
	"trainvault-go/internal/service"
	"trainvault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FileHandler 负责处理所有与文件存储相关的 API 请求。
type FileHandler struct {
	fileService service.FileService
}

// NewFileHandler 创建一个新的 FileHandler 实例。
func NewFileHandler(fileService service.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Upload 处理文件上传请求（multipart 表单：ownerKey, category, sensitive, file）。
func (h *FileHandler) Upload(c *gin.Context) {
	ownerKey := c.PostForm("ownerKey")
	category := c.PostForm("category")
	if ownerKey == "" || category == "" {
		writeFail(c, http.StatusBadRequest, "缺少必要的参数 ownerKey/category")
		return
	}
	sensitive, _ := strconv.ParseBool(c.PostForm("sensitive"))

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeFail(c, http.StatusBadRequest, "未能获取上传的文件")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		writeFail(c, http.StatusBadRequest, "无法读取上传的文件")
		return
	}
	defer f.Close()

	input := service.UploadInput{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Size:     fileHeader.Size,
		Reader:   f,
	}

	result, err := h.fileService.UploadFile(c.Request.Context(), input, ownerKey, category, sensitive, middleware.GetCorrelationID(c))
	if err != nil {
		h.writeError(c, "Upload", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "文件上传成功",
		"data":    result,
	})
}

// Download 处理文件下载请求。
func (h *FileHandler) Download(c *gin.Context) {
	fileID, ok := h.parseFileID(c)
	if !ok {
		return
	}

	content, err := h.fileService.GetFile(c.Request.Context(), fileID, middleware.GetCorrelationID(c))
	if err != nil {
		h.writeError(c, "Download", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+content.FileName+`"`)
	c.Data(http.StatusOK, content.MimeType, content.Data)
}

// Delete 处理文件删除请求。删除不存在的文件同样返回成功（幂等）。
func (h *FileHandler) Delete(c *gin.Context) {
	fileID, ok := h.parseFileID(c)
	if !ok {
		return
	}

	if err := h.fileService.DeleteFile(c.Request.Context(), fileID, middleware.GetCorrelationID(c)); err != nil {
		h.writeError(c, "Delete", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件删除成功",
	})
}

// Cleanup 手动触发一轮孤儿文件清理。
func (h *FileHandler) Cleanup(c *gin.Context) {
	removed, err := h.fileService.CleanupOrphanedFiles(c.Request.Context())
	if err != nil {
		h.writeError(c, "Cleanup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "孤儿清理完成",
		"removed": removed,
	})
}

// NotifyDigest 手动触发一次通知摘要发送。
func (h *FileHandler) NotifyDigest(c *gin.Context) {
	if err := h.fileService.SendDailyNotificationSummary(c.Request.Context()); err != nil {
		h.writeError(c, "NotifyDigest", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "通知摘要已处理",
	})
}

func (h *FileHandler) parseFileID(c *gin.Context) (uint, bool) {
	raw := c.Param("fileId")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeFail(c, http.StatusBadRequest, "非法的文件 id")
		return 0, false
	}
	return uint(id), true
}

// writeError 把子系统的错误分类映射到 HTTP 状态码。
func (h *FileHandler) writeError(c *gin.Context, op string, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		writeFail(c, http.StatusBadRequest, ve.Reason)
	case errors.Is(err, provider.ErrNotFound):
		writeFail(c, http.StatusNotFound, "文件对象不存在")
	default:
		log.Error(op+": 操作失败", err)
		writeFail(c, http.StatusInternalServerError, "服务器内部错误")
	}
}

// writeFail 以统一的响应信封返回失败结果。
func writeFail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
	})
}
