package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// awsProvider 通过 S3 协议（minio-go 客户端）访问对象存储，
// 同时兼容 AWS S3 与自建 MinIO 等 S3 兼容端点。
type awsProvider struct {
	client    *minio.Client
	bucket    string
	threshold int64
}

// NewAWS 创建 S3 对象存储变体并验证存储桶可达。
func NewAWS(ctx context.Context, cfg config.AWSConfig, threshold int64) (Provider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 S3 客户端失败: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("检查 S3 存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 S3 存储桶失败: %w", err)
		}
		log.Infof("[aws] 存储桶 '%s' 创建成功", cfg.Bucket)
	}

	return &awsProvider{client: client, bucket: cfg.Bucket, threshold: threshold}, nil
}

func (p *awsProvider) Type() string { return config.StorageTypeAWS }

func (p *awsProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: mimeByName(logicalName)}
	if size >= p.threshold {
		// 大对象走分片上传，分片大小与流式阈值一致。
		opts.PartSize = uint64(p.threshold)
	}
	if _, err := p.client.PutObject(ctx, p.bucket, logicalName, data, size, opts); err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}
	log.Debugf("[aws] 写入完成: %s/%s (correlationId=%s)", p.bucket, logicalName, correlationID)
	return logicalName, nil
}

func (p *awsProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	obj, err := p.client.GetObject(ctx, p.bucket, physicalPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	defer obj.Close()

	stat, err := obj.Stat()
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}

	mimeType := stat.ContentType
	if mimeType == "" {
		mimeType = mimeByName(physicalPath)
	}
	return buf.Bytes(), mimeType, nil
}

func (p *awsProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	if err := p.client.RemoveObject(ctx, p.bucket, physicalPath, minio.RemoveObjectOptions{}); err != nil {
		return p.wrap("delete", physicalPath, correlationID, err)
	}
	return nil
}

func (p *awsProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	_, err := p.client.StatObject(ctx, p.bucket, physicalPath, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if resp := minio.ToErrorResponse(err); resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	return false, p.wrap("exists", physicalPath, "", err)
}

func (p *awsProvider) Ping(ctx context.Context) error {
	if _, err := p.client.BucketExists(ctx, p.bucket); err != nil {
		return p.wrap("ping", p.bucket, "", err)
	}
	return nil
}

// wrap 将 S3 错误响应归类为统一的错误分类。
// 认证失败（密钥/签名错误）归入 unknown，属于永久错误，不会重试。
func (p *awsProvider) wrap(op, path, correlationID string, err error) *StorageError {
	class := ClassIO
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		class = ClassNotFound
	case "AccessDenied":
		class = ClassPermission
	case "QuotaExceeded", "EntityTooLarge":
		class = ClassCapacity
	case "SlowDown", "ServiceUnavailable", "OperationAborted":
		class = ClassBusy
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
		class = ClassUnknown
	default:
		switch resp.StatusCode {
		case http.StatusNotFound:
			class = ClassNotFound
		case http.StatusForbidden:
			class = ClassPermission
		case http.StatusTooManyRequests, http.StatusServiceUnavailable:
			class = ClassBusy
		case http.StatusInsufficientStorage:
			class = ClassCapacity
		}
	}
	return newError(op, p.Type(), path, correlationID, class, err)
}
