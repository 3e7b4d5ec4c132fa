package provider

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"time"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"
)

// guardedProvider 是施加在每个变体上的统一装饰器：
// 先做名称/路径校验，再以有界、带抖动的指数退避执行底层操作。
// 校验失败和永久错误（notfound/unknown）立即返回，绝不重试。
type guardedProvider struct {
	inner Provider
	cfg   config.RetryConfig
}

// Wrap 给变体套上共享的校验与重试装饰器。
func Wrap(p Provider, cfg config.RetryConfig) Provider {
	return &guardedProvider{inner: p, cfg: cfg}
}

func (g *guardedProvider) Type() string { return g.inner.Type() }

func (g *guardedProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	if err := ValidateLogicalName(logicalName); err != nil {
		return "", err
	}

	// 上传重试需要可重读的数据源：非首次尝试前必须把 reader 拨回起点。
	seeker, seekable := data.(io.Seeker)

	var path string
	err := g.retry(ctx, "upload", logicalName, correlationID, func(attempt int) error {
		if attempt > 1 {
			if !seekable {
				return &StorageError{
					Op: "upload", Backend: g.inner.Type(), Path: logicalName,
					CorrelationID: correlationID, Class: ClassUnknown, Attempts: attempt,
					Err: errors.New("data source is not seekable, cannot retry"),
				}
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return err
			}
		}
		var err error
		path, err = g.inner.Upload(ctx, data, size, logicalName, correlationID)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func (g *guardedProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	if err := ValidateLogicalName(physicalPath); err != nil {
		return nil, "", err
	}
	var data []byte
	var mimeType string
	err := g.retry(ctx, "download", physicalPath, correlationID, func(int) error {
		var err error
		data, mimeType, err = g.inner.Download(ctx, physicalPath, correlationID)
		return err
	})
	if err != nil {
		return nil, "", err
	}
	return data, mimeType, nil
}

func (g *guardedProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	if err := ValidateLogicalName(physicalPath); err != nil {
		return err
	}
	return g.retry(ctx, "delete", physicalPath, correlationID, func(int) error {
		return g.inner.Delete(ctx, physicalPath, correlationID)
	})
}

func (g *guardedProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	if err := ValidateLogicalName(physicalPath); err != nil {
		return false, err
	}
	return g.inner.Exists(ctx, physicalPath)
}

func (g *guardedProvider) Ping(ctx context.Context) error {
	return g.inner.Ping(ctx)
}

// retry 以有界次数执行 op，瞬时错误按指数退避加抖动等待后重试。
func (g *guardedProvider) retry(ctx context.Context, op, path, correlationID string, fn func(attempt int) error) error {
	backoff := time.Duration(g.cfg.MinBackoffMs) * time.Millisecond
	maxBackoff := time.Duration(g.cfg.MaxBackoffMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}

		se := asStorageError(op, g.inner.Type(), path, correlationID, lastErr)
		se.Attempts = attempt
		lastErr = se

		if !se.Class.Retryable() {
			return lastErr
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}

		// 半区间抖动：在 [backoff/2, backoff) 内随机取值，避免重试风暴。
		wait := backoff/2 + time.Duration(rand.Int63n(int64(backoff/2)+1))
		log.Warnf("[storage] %s 第 %d 次尝试失败 (backend=%s, path=%s, class=%s, correlationId=%s)，%v 后重试: %v",
			op, attempt, g.inner.Type(), path, se.Class, correlationID, wait, se.Err)

		select {
		case <-ctx.Done():
			return newError(op, g.inner.Type(), path, correlationID, ClassIO, ctx.Err())
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return lastErr
}

// asStorageError 保证装饰器向外返回的错误总是 *StorageError。
func asStorageError(op, backend, path, correlationID string, err error) *StorageError {
	var se *StorageError
	if errors.As(err, &se) {
		return se
	}
	return newError(op, backend, path, correlationID, ClassUnknown, err)
}
