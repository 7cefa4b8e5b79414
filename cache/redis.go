// Package cache 缓存已处理请求的结果地址
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chaos-io/bgremover/config"
)

const keyPrefix = "bgremover:"

type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultCache(cfg *config.RedisConfig) *ResultCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &ResultCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *ResultCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 返回缓存的 URL，未命中时返回空串
func (c *ResultCache) Get(ctx context.Context, key string) (string, error) {
	url, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

func (c *ResultCache) Set(ctx context.Context, key, url string) error {
	return c.client.Set(ctx, keyPrefix+key, url, c.ttl).Err()
}

func (c *ResultCache) Close() error {
	return c.client.Close()
}

// Key 由操作名与各参数计算 md5，参数顺序有意义
func Key(operation string, parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, "\x00")))
	return operation + ":" + hex.EncodeToString(sum[:])
}
