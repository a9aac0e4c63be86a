package providers

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

type redisUploader struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisUploader stores every object under "<prefix>:<objectPath>" so downstream
// jobs can read a run's results without access to the runner's filesystem.
// A zero ttl keeps keys forever.
func NewRedisUploader(rdb *redis.Client, prefix string, ttl time.Duration) Uploader {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "suiterun"
	}
	return &redisUploader{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (u *redisUploader) UploadBytes(ctx context.Context, objectPath string, contentType string, data []byte) (string, error) {
	key := u.prefix + ":" + strings.TrimPrefix(objectPath, "/")
	if err := u.rdb.Set(ctx, key, data, u.ttl).Err(); err != nil {
		return "", err
	}
	return "redis://" + key, nil
}
