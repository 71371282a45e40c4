package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheManager is a thin JSON layer over Redis. Identity lookups and
// leaderboard reads go through it; rank fetches never do, since every fetch
// must produce a fresh snapshot row.
type CacheManager struct {
	client  redisClient
	enabled bool
	metrics *MetricsCollector
}

// redisClient is the subset of redis.Client the cache uses; tests substitute
// an in-memory implementation.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func NewCacheManager(cfg *Config, metrics *MetricsCollector) *CacheManager {
	redisDB, _ := strconv.Atoi(cfg.RedisDB)
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       redisDB,
	})

	return &CacheManager{
		client:  client,
		enabled: cfg.CacheEnabled,
		metrics: metrics,
	}
}

func (cm *CacheManager) Get(ctx context.Context, key string, result interface{}) error {
	if !cm.enabled {
		return redis.Nil
	}

	data, err := cm.client.Get(ctx, key).Result()
	if err != nil {
		if cm.metrics != nil {
			cm.metrics.RecordCacheMiss(key)
		}
		return err
	}

	if cm.metrics != nil {
		cm.metrics.RecordCacheHit(key)
	}
	return json.Unmarshal([]byte(data), result)
}

func (cm *CacheManager) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	if !cm.enabled {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return cm.client.Set(ctx, key, jsonData, ttl).Err()
}

func (cm *CacheManager) Delete(ctx context.Context, keys ...string) error {
	if !cm.enabled || len(keys) == 0 {
		return nil
	}
	return cm.client.Del(ctx, keys...).Err()
}

func (cm *CacheManager) Key(prefix string, params ...string) string {
	key := fmt.Sprintf("ladder:%s", prefix)
	for _, param := range params {
		key = fmt.Sprintf("%s:%s", key, param)
	}
	return key
}

// LeaderboardKey names the cached leaderboard for a guild. Entries are never
// invalidated eagerly; they age out on the short TTL, so a fresh snapshot can
// take up to that long to show.
func (cm *CacheManager) LeaderboardKey(guildID string) string {
	return cm.Key("leaderboard", guildID)
}
