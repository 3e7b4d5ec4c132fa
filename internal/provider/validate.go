package provider

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
)

var (
	// ErrEmptyName 表示逻辑名为空。
	ErrEmptyName = errors.New("storage: logical name cannot be empty")
	// ErrInvalidName 表示逻辑名包含非法字符、以 / 开头或包含路径穿越。
	ErrInvalidName = errors.New("storage: logical name contains invalid characters or path traversal")
)

// ValidateLogicalName 校验逻辑名是否安全。
// 规则：非空、仅允许 [A-Za-z0-9._/-]、不以 / 开头、任何位置不得出现 ".."。
// 校验在任何后端调用之前完成，失败的名称绝不会触达后端。
func ValidateLogicalName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.HasPrefix(name, "/") {
		return ErrInvalidName
	}
	if strings.Contains(name, "..") {
		return ErrInvalidName
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == '/':
		default:
			return ErrInvalidName
		}
	}
	return nil
}

// SanitizeFileName 将任意文件名收敛到安全字符集内，非法字符替换为下划线。
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// mimeByName 根据文件扩展名推断 MIME 类型，推断不出时返回通用二进制类型。
func mimeByName(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
