package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// OpenRedis はREDIS_URLからRedisクライアントを生成し、疎通を確認する。
// redis:// または rediss:// 形式以外はホスト:ポートとして扱う。
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	client, err := NewRedisClient(redisURL)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewRedisClient は接続を試行せずにRedisクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	trimmed := strings.TrimSpace(redisURL)
	if trimmed == "" {
		return nil, fmt.Errorf("redis url is empty")
	}

	if strings.HasPrefix(trimmed, "redis://") || strings.HasPrefix(trimmed, "rediss://") {
		opt, err := redis.ParseURL(trimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}

	return redis.NewClient(&redis.Options{Addr: trimmed}), nil
}

// RedisPinger はredis.ClientをPingContextインターフェースに合わせるアダプタ。
type RedisPinger struct {
	Client *redis.Client
}

// PingContext はRedisへの疎通を確認する。
func (p RedisPinger) PingContext(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}
