package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"trainvault-go/internal/provider"
	"trainvault-go/internal/service"

	"github.com/gin-gonic/gin"
)

// stubFileService 按预设错误响应编排层调用。
type stubFileService struct {
	getErr    error
	deleteErr error
}

func (s *stubFileService) UploadFile(context.Context, service.UploadInput, string, string, bool, string) (*service.UploadResult, error) {
	return &service.UploadResult{FileID: 1, Path: "documents/P1/a.txt"}, nil
}

func (s *stubFileService) GetFile(context.Context, uint, string) (*service.FileContent, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &service.FileContent{Data: []byte("x"), FileName: "a.txt", MimeType: "text/plain"}, nil
}

func (s *stubFileService) DeleteFile(context.Context, uint, string) error { return s.deleteErr }

func (s *stubFileService) SendDailyNotificationSummary(context.Context) error { return nil }

func (s *stubFileService) CleanupOrphanedFiles(context.Context) (int, error) { return 0, nil }

func newTestRouter(svc service.FileService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewFileHandler(svc)
	r.GET("/files/:fileId", h.Download)
	r.DELETE("/files/:fileId", h.Delete)
	return r
}

// 所有响应（成功与失败）都使用统一的 code/message 信封。
func TestResponseEnvelopeShape(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubFileService
		method     string
		target     string
		wantStatus int
	}{
		{"invalid file id", &stubFileService{}, http.MethodDelete, "/files/abc", http.StatusBadRequest},
		{"validation error", &stubFileService{getErr: &service.ValidationError{Reason: "文件不存在: 9"}}, http.MethodGet, "/files/9", http.StatusBadRequest},
		{"object not found", &stubFileService{getErr: provider.ErrNotFound}, http.MethodGet, "/files/9", http.StatusNotFound},
		{"internal error", &stubFileService{getErr: context.DeadlineExceeded}, http.MethodGet, "/files/9", http.StatusInternalServerError},
		{"delete success", &stubFileService{}, http.MethodDelete, "/files/9", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.target, nil)
			newTestRouter(tt.svc).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var body struct {
				Code    *int   `json:"code"`
				Message string `json:"message"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			if body.Code == nil || *body.Code != tt.wantStatus {
				t.Errorf("body code = %v, want %d", body.Code, tt.wantStatus)
			}
			if body.Message == "" {
				t.Error("body message must not be empty")
			}
		})
	}
}
