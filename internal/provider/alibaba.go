package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
)

// STSCredentials 是一组短期委托凭证。
type STSCredentials struct {
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
}

// CredentialSource 提供新的 STS 凭证，由外部（如 STS 服务客户端）实现。
type CredentialSource func(ctx context.Context) (STSCredentials, error)

// alibabaProvider 通过阿里云 OSS SDK 访问对象存储。
// 它持有短期 STS 凭证，由独立于任何单次请求的后台定时器定期刷新。
type alibabaProvider struct {
	cfg       config.AlibabaConfig
	creds     CredentialSource
	threshold int64

	mu     sync.RWMutex
	bucket *oss.Bucket

	stop chan struct{}
	once sync.Once
}

// NewAlibaba 创建阿里云 OSS 变体，建立首个带凭证的客户端并启动凭证刷新定时器。
// source 为 nil 时退化为配置中的静态凭证（不刷新）。
func NewAlibaba(ctx context.Context, cfg config.AlibabaConfig, threshold int64, source CredentialSource) (Provider, error) {
	if source == nil {
		source = func(context.Context) (STSCredentials, error) {
			return STSCredentials{
				AccessKeyID:     cfg.STS.AccessKeyID,
				AccessKeySecret: cfg.STS.AccessKeySecret,
				SecurityToken:   cfg.STS.SecurityToken,
			}, nil
		}
	}

	p := &alibabaProvider{
		cfg:       cfg,
		creds:     source,
		threshold: threshold,
		stop:      make(chan struct{}),
	}
	if err := p.refreshCredentials(ctx); err != nil {
		return nil, fmt.Errorf("初始化 OSS 客户端失败: %w", err)
	}

	if cfg.STS.RefreshMinutes > 0 {
		go p.refreshLoop(time.Duration(cfg.STS.RefreshMinutes) * time.Minute)
	}
	return p, nil
}

func (p *alibabaProvider) Type() string { return config.StorageTypeAlibaba }

// refreshLoop 按固定间隔刷新 STS 凭证，与请求路径完全解耦。
func (p *alibabaProvider) refreshLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if err := p.refreshCredentials(context.Background()); err != nil {
				log.Error("[alibaba] STS 凭证刷新失败，沿用旧凭证", err)
			}
		}
	}
}

// refreshCredentials 拉取新凭证并原子替换 bucket 句柄。
func (p *alibabaProvider) refreshCredentials(ctx context.Context) error {
	creds, err := p.creds(ctx)
	if err != nil {
		return err
	}
	client, err := oss.New(p.cfg.Endpoint, creds.AccessKeyID, creds.AccessKeySecret,
		oss.SecurityToken(creds.SecurityToken))
	if err != nil {
		return err
	}
	bucket, err := client.Bucket(p.cfg.Bucket)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.bucket = bucket
	p.mu.Unlock()
	log.Infof("[alibaba] OSS 凭证已刷新 (bucket=%s)", p.cfg.Bucket)
	return nil
}

func (p *alibabaProvider) handle() *oss.Bucket {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bucket
}

// Close 停止凭证刷新定时器。
func (p *alibabaProvider) Close() error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *alibabaProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	bucket := p.handle()

	if size >= p.threshold {
		if err := p.multipartUpload(bucket, data, size, logicalName); err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
	} else {
		if err := bucket.PutObject(logicalName, data, oss.ContentType(mimeByName(logicalName))); err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
	}
	log.Debugf("[alibaba] 写入完成: %s/%s (correlationId=%s)", p.cfg.Bucket, logicalName, correlationID)
	return logicalName, nil
}

// multipartUpload 将大对象按阈值大小切片分段上传。
func (p *alibabaProvider) multipartUpload(bucket *oss.Bucket, data io.Reader, size int64, logicalName string) error {
	imur, err := bucket.InitiateMultipartUpload(logicalName, oss.ContentType(mimeByName(logicalName)))
	if err != nil {
		return err
	}

	var parts []oss.UploadPart
	partNumber := 1
	remaining := size
	for remaining > 0 {
		partSize := p.threshold
		if remaining < partSize {
			partSize = remaining
		}
		part, err := bucket.UploadPart(imur, io.LimitReader(data, partSize), partSize, partNumber)
		if err != nil {
			_ = bucket.AbortMultipartUpload(imur)
			return err
		}
		parts = append(parts, part)
		remaining -= partSize
		partNumber++
	}

	if _, err := bucket.CompleteMultipartUpload(imur, parts); err != nil {
		_ = bucket.AbortMultipartUpload(imur)
		return err
	}
	return nil
}

func (p *alibabaProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	bucket := p.handle()

	body, err := bucket.GetObject(physicalPath)
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	defer body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}

	mimeType := mimeByName(physicalPath)
	if meta, err := bucket.GetObjectDetailedMeta(physicalPath); err == nil {
		if ct := meta.Get("Content-Type"); ct != "" {
			mimeType = ct
		}
	}
	return buf.Bytes(), mimeType, nil
}

func (p *alibabaProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	if err := p.handle().DeleteObject(physicalPath); err != nil {
		return p.wrap("delete", physicalPath, correlationID, err)
	}
	return nil
}

func (p *alibabaProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	exists, err := p.handle().IsObjectExist(physicalPath)
	if err != nil {
		return false, p.wrap("exists", physicalPath, "", err)
	}
	return exists, nil
}

func (p *alibabaProvider) Ping(ctx context.Context) error {
	if _, err := p.handle().ListObjects(oss.MaxKeys(1)); err != nil {
		return p.wrap("ping", p.cfg.Bucket, "", err)
	}
	return nil
}

// wrap 将 OSS 服务错误归类为统一的错误分类。
func (p *alibabaProvider) wrap(op, path, correlationID string, err error) *StorageError {
	class := ClassIO
	var svcErr oss.ServiceError
	if errors.As(err, &svcErr) {
		switch svcErr.Code {
		case "NoSuchKey", "NoSuchBucket":
			class = ClassNotFound
		case "AccessDenied":
			class = ClassPermission
		case "QuotaExceeded":
			class = ClassCapacity
		case "Throttling", "RequestTimeout":
			class = ClassBusy
		case "InvalidAccessKeyId", "SecurityTokenExpired", "InvalidSecurityToken", "SignatureDoesNotMatch":
			class = ClassUnknown
		default:
			switch svcErr.StatusCode {
			case http.StatusNotFound:
				class = ClassNotFound
			case http.StatusForbidden:
				class = ClassPermission
			case http.StatusTooManyRequests, http.StatusServiceUnavailable:
				class = ClassBusy
			}
		}
	}
	return newError(op, p.Type(), path, correlationID, class, err)
}
