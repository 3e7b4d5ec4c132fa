package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// gcpProvider 通过官方 GCS 客户端访问 Google Cloud Storage。
type gcpProvider struct {
	client    *gcs.Client
	bucket    string
	threshold int64
}

// NewGCP 创建 GCS 对象存储变体并验证存储桶可达。
func NewGCP(ctx context.Context, cfg config.GCPConfig, threshold int64) (Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化 GCS 客户端失败: %w", err)
	}

	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("检查 GCS 存储桶失败: %w", err)
	}

	return &gcpProvider{client: client, bucket: cfg.Bucket, threshold: threshold}, nil
}

func (p *gcpProvider) Type() string { return config.StorageTypeGCP }

func (p *gcpProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	w := p.client.Bucket(p.bucket).Object(logicalName).NewWriter(ctx)
	w.ContentType = mimeByName(logicalName)
	if size >= p.threshold {
		// 大对象分块续传，块大小与流式阈值一致。
		w.ChunkSize = int(p.threshold)
	}
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	if err := w.Close(); err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	log.Debugf("[gcp] 写入完成: %s/%s (correlationId=%s)", p.bucket, logicalName, correlationID)
	return logicalName, nil
}

func (p *gcpProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	r, err := p.client.Bucket(p.bucket).Object(physicalPath).NewReader(ctx)
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	defer r.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}

	mimeType := r.Attrs.ContentType
	if mimeType == "" {
		mimeType = mimeByName(physicalPath)
	}
	return buf.Bytes(), mimeType, nil
}

func (p *gcpProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	if err := p.client.Bucket(p.bucket).Object(physicalPath).Delete(ctx); err != nil {
		return p.wrap("delete", physicalPath, correlationID, err)
	}
	return nil
}

func (p *gcpProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	_, err := p.client.Bucket(p.bucket).Object(physicalPath).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return false, nil
	}
	return false, p.wrap("exists", physicalPath, "", err)
}

func (p *gcpProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Bucket(p.bucket).Attrs(ctx); err != nil {
		return p.wrap("ping", p.bucket, "", err)
	}
	return nil
}

// wrap 将 GCS 错误归类为统一的错误分类。
func (p *gcpProvider) wrap(op, path, correlationID string, err error) *StorageError {
	class := ClassIO
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		class = ClassNotFound
	} else {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusNotFound:
				class = ClassNotFound
			case http.StatusForbidden:
				class = ClassPermission
			case http.StatusTooManyRequests:
				class = ClassBusy
			case http.StatusInsufficientStorage:
				class = ClassCapacity
			case http.StatusUnauthorized:
				class = ClassUnknown
			}
		}
	}
	return newError(op, p.Type(), path, correlationID, class, err)
}
