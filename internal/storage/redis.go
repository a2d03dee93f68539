package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Akash-Sakala/AgriQNet/internal/processing"
)

const (
	subsKeyPrefix = "agriqnet:subs:"
	alertsKey     = "agriqnet:alerts"
	maxAlerts     = 500
)

// RedisStore guarda cada distrito como un SET de teléfonos (SADD es idempotente
// y atómico) y el historial de alertas como una lista acotada.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedis conecta a addr ("host:port" o URL redis://).
func NewRedis(addr string) (*RedisStore, error) {
	var opts *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		o, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("storage: parse redis url: %w", err)
		}
		opts = o
	} else {
		opts = &redis.Options{Addr: addr}
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("storage: ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) AddSubscriber(ctx context.Context, district, phone string) error {
	if err := s.rdb.SAdd(ctx, subsKeyPrefix+district, phone).Err(); err != nil {
		return fmt.Errorf("storage: add subscriber: %w", err)
	}
	return nil
}

func (s *RedisStore) Subscribers(ctx context.Context, district string) ([]string, error) {
	phones, err := s.rdb.SMembers(ctx, subsKeyPrefix+district).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: list subscribers: %w", err)
	}
	return phones, nil
}

func (s *RedisStore) Counts(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	iter := s.rdb.Scan(ctx, 0, subsKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := s.rdb.SCard(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("storage: count subscribers: %w", err)
		}
		out[strings.TrimPrefix(key, subsKeyPrefix)] = int(n)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("storage: scan subscribers: %w", err)
	}
	return out, nil
}

func (s *RedisStore) SaveAlert(ctx context.Context, a processing.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, alertsKey, data)
	pipe.LTrim(ctx, alertsKey, 0, maxAlerts-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storage: save alert: %w", err)
	}
	return nil
}

func (s *RedisStore) ListAlerts(ctx context.Context, limit int) ([]processing.Alert, error) {
	if limit <= 0 || limit > maxAlerts {
		limit = maxAlerts
	}
	items, err := s.rdb.LRange(ctx, alertsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("storage: list alerts: %w", err)
	}
	out := make([]processing.Alert, 0, len(items))
	for _, it := range items {
		var a processing.Alert
		if err := json.Unmarshal([]byte(it), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
