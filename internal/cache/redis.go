package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trainvault-go/internal/model"
	"trainvault-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// redisCache 是 Redis 实现的 TTL 缓存，条目以 JSON 存储。
// 容量上界交由 Redis 的 maxmemory 淘汰策略保证。
// 任何 Redis 错误都按未命中处理并记日志——缓存失败绝不影响主流程。
type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis 创建 Redis 缓存。
func NewRedis(client *redis.Client, ttl time.Duration) MetadataCache {
	return &redisCache{client: client, ttl: ttl}
}

func redisKey(id uint) string {
	return fmt.Sprintf("filemeta:%d", id)
}

func (c *redisCache) Get(ctx context.Context, id uint) (*model.FileMetadata, bool) {
	raw, err := c.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warnf("[cache] Redis 读取失败 (id=%d): %v", id, err)
		}
		return nil, false
	}
	var meta model.FileMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		log.Warnf("[cache] 缓存条目解析失败，按未命中处理 (id=%d): %v", id, err)
		return nil, false
	}
	return &meta, true
}

func (c *redisCache) Set(ctx context.Context, id uint, meta *model.FileMetadata) {
	if meta == nil {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		log.Warnf("[cache] 缓存条目序列化失败 (id=%d): %v", id, err)
		return
	}
	if err := c.client.Set(ctx, redisKey(id), raw, c.ttl).Err(); err != nil {
		log.Warnf("[cache] Redis 写入失败 (id=%d): %v", id, err)
	}
}

func (c *redisCache) Delete(ctx context.Context, id uint) {
	if err := c.client.Del(ctx, redisKey(id)).Err(); err != nil {
		log.Warnf("[cache] Redis 删除失败 (id=%d): %v", id, err)
	}
}
