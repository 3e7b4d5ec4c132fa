// Package service 包含了文件存储子系统的业务编排逻辑。
package service

import "fmt"

// ValidationError 表示调用方输入非法：空文件、不允许的 MIME 类型、超限大小、
// 非法路径、不存在的归属实体或文件 id。此类错误立即返回，绝不重试。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// newValidationError 构造一个带格式化原因的 ValidationError。
func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
