package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/osvaldoandrade/suiterun/pkg/domain"

	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("not-found")

// RunRepository keeps a history of finished runs in Redis.
type RunRepository interface {
	SaveRun(ctx context.Context, rec domain.RunRecord) error
	GetRun(ctx context.Context, runID string) (*domain.RunRecord, error)
	ListRecent(ctx context.Context, limit int) ([]domain.RunRecord, error)
}

type runRedisRepo struct {
	rdb       *redis.Client
	prefix    string
	retention time.Duration
}

// NewRunRepository stores records under "<prefix>:runs". Records older than
// retention are pruned on save; zero keeps everything.
func NewRunRepository(rdb *redis.Client, prefix string, retention time.Duration) RunRepository {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "suiterun"
	}
	return &runRedisRepo{rdb: rdb, prefix: prefix, retention: retention}
}

func (r *runRedisRepo) keyRunsHash() string  { return r.prefix + ":runs" }
func (r *runRedisRepo) keyRunsIndex() string { return r.prefix + ":runs:index" }

func (r *runRedisRepo) SaveRun(ctx context.Context, rec domain.RunRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.keyRunsHash(), rec.RunID, string(b))
	pipe.ZAdd(ctx, r.keyRunsIndex(), &redis.Z{Score: float64(rec.FinishedAt.UnixMilli()), Member: rec.RunID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save run: %w", err)
	}
	if r.retention > 0 {
		if err := r.prune(ctx, rec.FinishedAt.Add(-r.retention)); err != nil {
			return err
		}
	}
	return nil
}

func (r *runRedisRepo) prune(ctx context.Context, before time.Time) error {
	upper := fmt.Sprintf("(%d", before.UnixMilli())
	ids, err := r.rdb.ZRangeByScore(ctx, r.keyRunsIndex(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return fmt.Errorf("redis ZRANGEBYSCORE runs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := r.rdb.TxPipeline()
	pipe.HDel(ctx, r.keyRunsHash(), ids...)
	pipe.ZRem(ctx, r.keyRunsIndex(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis prune runs: %w", err)
	}
	return nil
}

func (r *runRedisRepo) GetRun(ctx context.Context, runID string) (*domain.RunRecord, error) {
	js, err := r.rdb.HGet(ctx, r.keyRunsHash(), runID).Result()
	if err == redis.Nil || (err == nil && js == "") {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET run: %w", err)
	}
	var rec domain.RunRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &rec, nil
}

// ListRecent returns up to limit records, newest first.
func (r *runRedisRepo) ListRecent(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ids, err := r.rdb.ZRevRange(ctx, r.keyRunsIndex(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ZREVRANGE runs: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := r.rdb.HMGet(ctx, r.keyRunsHash(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HMGET runs: %w", err)
	}
	out := make([]domain.RunRecord, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok || s == "" {
			continue
		}
		var rec domain.RunRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
