// Package cache 提供文件元数据的热缓存。
// 缓存只是读路径的性能优化：任何操作的正确性都不依赖缓存内容，
// 未命中时总是回源到元数据目录（数据库才是事实来源）。
package cache

import (
	"context"

	"trainvault-go/internal/model"
)

// MetadataCache 是 fileId -> FileMetadata 的带 TTL 键值缓存。
type MetadataCache interface {
	// Get 返回缓存中的元数据副本，未命中或已过期时返回 false。
	Get(ctx context.Context, id uint) (*model.FileMetadata, bool)
	// Set 写入或覆盖一条缓存。
	Set(ctx context.Context, id uint, meta *model.FileMetadata)
	// Delete 使一条缓存失效。
	Delete(ctx context.Context, id uint)
}
