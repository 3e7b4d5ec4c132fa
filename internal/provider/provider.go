// Package provider 实现了面向多种存储后端的统一存储抽象。
// 五个变体（local/nas/aws/gcp/alibaba）共享同一个接口，名称校验、
// 错误归类和重试策略统一由装饰器 Wrap 施加，不在各变体中重复实现。
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Provider 是所有存储后端变体共享的契约。
// physicalPath 是后端相关的定位串：本地/NAS 为相对根目录的路径，云端为对象键。
type Provider interface {
	// Upload 将 data 写入 logicalName 指定的逻辑位置，返回后端实际存储路径。
	Upload(ctx context.Context, data io.Reader, size int64, logicalName, correlationID string) (string, error)
	// Download 读取 physicalPath 处的对象，返回字节内容和 MIME 类型。
	Download(ctx context.Context, physicalPath, correlationID string) ([]byte, string, error)
	// Delete 删除 physicalPath 处的对象。
	Delete(ctx context.Context, physicalPath, correlationID string) error
	// Exists 探测 physicalPath 处的对象是否存在。
	Exists(ctx context.Context, physicalPath string) (bool, error)
	// Ping 做一次轻量健康检查。
	Ping(ctx context.Context) error
	// Type 返回该变体的 storageType 标识。
	Type() string
}

// ErrorClass 是后端错误统一归类后的固定类别。
type ErrorClass string

const (
	ClassPermission ErrorClass = "permission" // 权限被拒
	ClassCapacity   ErrorClass = "capacity"   // 容量耗尽
	ClassBusy       ErrorClass = "busy"       // 资源忙/被锁
	ClassIO         ErrorClass = "io"         // I/O 错误
	ClassNotFound   ErrorClass = "notfound"   // 对象不存在
	ClassUnknown    ErrorClass = "unknown"    // 无法归类（含认证失败）
)

// Retryable 返回该类别是否值得重试。
// notfound 与 unknown（认证失败归入此类）属于永久错误，永不重试。
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassPermission, ClassCapacity, ClassBusy, ClassIO:
		return true
	}
	return false
}

// ErrNotFound 是对象不存在的哨兵错误，调用方可用 errors.Is 判断。
var ErrNotFound = errors.New("storage: object not found")

// StorageError 是存储操作失败时携带完整上下文的错误类型。
type StorageError struct {
	Op            string
	Backend       string
	Path          string
	CorrelationID string
	Class         ErrorClass
	Attempts      int
	Err           error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s on %s failed (path=%s, class=%s, attempts=%d, correlationId=%s): %v",
		e.Op, e.Backend, e.Path, e.Class, e.Attempts, e.CorrelationID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is 让 ClassNotFound 的 StorageError 与 ErrNotFound 匹配。
func (e *StorageError) Is(target error) bool {
	return target == ErrNotFound && e.Class == ClassNotFound
}

// newError 构造一个 StorageError，若 err 已经是 StorageError 则保留其 Class。
func newError(op, backend, path, correlationID string, class ErrorClass, err error) *StorageError {
	var se *StorageError
	if errors.As(err, &se) {
		class = se.Class
	}
	return &StorageError{
		Op:            op,
		Backend:       backend,
		Path:          path,
		CorrelationID: correlationID,
		Class:         class,
		Attempts:      1,
		Err:           err,
	}
}

// Registry 是 storageType 到 Provider 实现的调度表。
type Registry struct {
	providers map[string]Provider
}

// NewRegistry 用给定的变体集合构建调度表。
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[string]Provider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Registry{providers: m}
}

// Get 返回 storageType 对应的变体；未知类型返回错误，由调用方决定跳过还是失败。
func (r *Registry) Get(storageType string) (Provider, error) {
	p, ok := r.providers[storageType]
	if !ok {
		return nil, fmt.Errorf("未知的存储后端类型: %q", storageType)
	}
	return p, nil
}

// Types 返回已注册的全部 storageType。
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.providers))
	for t := range r.providers {
		out = append(out, t)
	}
	return out
}
