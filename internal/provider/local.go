package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"trainvault-go/internal/config"
	"trainvault-go/pkg/log"
)

const (
	localFileMode = 0o600
	localDirMode  = 0o700
)

// localProvider 将对象写入配置根目录下的本地文件系统。
// 超过流式阈值的文件走 io.Copy 流式落盘，小文件整体缓冲写入。
type localProvider struct {
	root      string
	threshold int64
}

// NewLocal 创建本地文件系统变体，并确保根目录存在。
func NewLocal(cfg config.LocalConfig, threshold int64) (Provider, error) {
	root := filepath.Clean(cfg.RootDir)
	if err := os.MkdirAll(root, localDirMode); err != nil {
		return nil, fmt.Errorf("创建本地存储根目录失败: %w", err)
	}
	return &localProvider{root: root, threshold: threshold}, nil
}

func (p *localProvider) Type() string { return config.StorageTypeLocal }

func (p *localProvider) Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error) {
	dest := filepath.Join(p.root, filepath.FromSlash(logicalName))
	if err := os.MkdirAll(filepath.Dir(dest), localDirMode); err != nil {
		return "", p.wrap("upload", logicalName, correlationID, err)
	}

	if size >= p.threshold {
		// 大文件流式写入，避免整体进内存。
		f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, localFileMode)
		if err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
		if _, err := io.Copy(f, data); err != nil {
			f.Close()
			_ = os.Remove(dest)
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
		if err := f.Close(); err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
	} else {
		buf := new(bytes.Buffer)
		if _, err := buf.ReadFrom(data); err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
		if err := os.WriteFile(dest, buf.Bytes(), localFileMode); err != nil {
			return "", p.wrap("upload", logicalName, correlationID, err)
		}
	}

	log.Debugf("[local] 写入完成: %s (correlationId=%s)", logicalName, correlationID)
	return logicalName, nil
}

func (p *localProvider) Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error) {
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(physicalPath)))
	if err != nil {
		return nil, "", p.wrap("download", physicalPath, correlationID, err)
	}
	return data, mimeByName(physicalPath), nil
}

func (p *localProvider) Delete(ctx context.Context, physicalPath, correlationID string) error {
	dest := filepath.Join(p.root, filepath.FromSlash(physicalPath))
	if err := os.Remove(dest); err != nil {
		return p.wrap("delete", physicalPath, correlationID, err)
	}
	p.pruneEmptyDirs(filepath.Dir(dest))
	return nil
}

func (p *localProvider) Exists(ctx context.Context, physicalPath string) (bool, error) {
	_, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(physicalPath)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, p.wrap("exists", physicalPath, "", err)
}

func (p *localProvider) Ping(ctx context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return p.wrap("ping", p.root, "", err)
	}
	return nil
}

// pruneEmptyDirs 自下而上删除因本次删除而变空的父目录，到配置根目录为止。
func (p *localProvider) pruneEmptyDirs(dir string) {
	for dir != p.root && len(dir) > len(p.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// wrap 将文件系统错误归类为统一的错误分类。
func (p *localProvider) wrap(op, path, correlationID string, err error) *StorageError {
	class := ClassIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		class = ClassNotFound
	case errors.Is(err, fs.ErrPermission):
		class = ClassPermission
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		class = ClassCapacity
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.EAGAIN):
		class = ClassBusy
	}
	return newError(op, p.Type(), path, correlationID, class, err)
}
