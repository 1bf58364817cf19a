package websearch

import (
	"Minerva/internal/config"
	"Minerva/internal/models"
	"Minerva/pkg/logger"
	"Minerva/pkg/util"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheCapacity = 1024
	redisKeyPrefix       = "websearch:decision:"
)

// Engine 判定一次请求是否需要外部搜索。判定本身是纯规则求值；
// 结果经过两级缓存：进程内 LRU 在前，Redis 在后（可选）。
type Engine struct {
	local *util.LRUCache[string, models.SearchDecision]
	rdb   *redis.Client
	ttl   time.Duration
	log   *logger.Logger
}

// NewEngine 创建搜索决策引擎。rdb 可以为 nil，此时只使用进程内缓存。
func NewEngine(cfg config.WebSearchConfig, rdb *redis.Client, log *logger.Logger) (*Engine, error) {
	ttl := config.Duration(cfg.CacheTTL, defaultCacheTTL)
	capacity := cfg.CacheCapacity
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}

	local, err := util.NewWithConfig[string, models.SearchDecision](util.CacheConfig{
		Capacity: capacity,
		TTL:      ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建决策缓存: %w", err)
	}

	return &Engine{local: local, rdb: rdb, ttl: ttl, log: log}, nil
}

// Decide 返回当前请求的搜索决策。缓存键为 ownerID 加规范化后的查询文本，
// 同一用户在 TTL 内的同一问题不会重复求值。
func (e *Engine) Decide(ctx context.Context, ownerID, query string, cls models.ClassificationResult) models.SearchDecision {
	key := cacheKey(ownerID, query)

	if dec, ok := e.local.Get(key); ok {
		return dec
	}
	if dec, ok := e.fromRedis(ctx, key); ok {
		e.local.Put(key, dec)
		return dec
	}

	dec := evaluate(query, cls)
	e.local.Put(key, dec)
	e.toRedis(ctx, key, dec)
	return dec
}

// evaluate 是纯规则判定。时效性意图和新鲜度线索给出肯定结论；
// 个人类请求由记忆回答，定义类问题由模型自身知识回答，均无需搜索。
func evaluate(query string, cls models.ClassificationResult) models.SearchDecision {
	if cls.Intent == models.IntentPersonal {
		return models.SearchDecision{ShouldSearch: false, Reason: "personal query answered from memory"}
	}
	if cls.NeedsWebSearch || cls.Intent == models.IntentTimeSensitive {
		return models.SearchDecision{ShouldSearch: true, Reason: "time-sensitive intent"}
	}

	lowered := strings.ToLower(query)
	for _, cue := range []string{"latest", "current", "today", "right now", "breaking", "up to date", "this year"} {
		if strings.Contains(lowered, cue) {
			return models.SearchDecision{ShouldSearch: true, Reason: "freshness cue: " + cue}
		}
	}

	if cls.Intent == models.IntentTeaching {
		return models.SearchDecision{ShouldSearch: false, Reason: "definitional question, stable knowledge"}
	}
	return models.SearchDecision{ShouldSearch: false, Reason: "no freshness signal"}
}

func (e *Engine) fromRedis(ctx context.Context, key string) (models.SearchDecision, bool) {
	if e.rdb == nil {
		return models.SearchDecision{}, false
	}
	raw, err := e.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		// 缓存未命中或 Redis 不可用都静默回落到规则求值。
		return models.SearchDecision{}, false
	}
	var dec models.SearchDecision
	if err := json.Unmarshal([]byte(raw), &dec); err != nil {
		return models.SearchDecision{}, false
	}
	return dec, true
}

func (e *Engine) toRedis(ctx context.Context, key string, dec models.SearchDecision) {
	if e.rdb == nil {
		return
	}
	raw, err := json.Marshal(dec)
	if err != nil {
		return
	}
	if err := e.rdb.Set(ctx, redisKeyPrefix+key, raw, e.ttl).Err(); err != nil && e.log != nil {
		e.log.Debug(fmt.Sprintf("写入 Redis 决策缓存失败: %v", err))
	}
}

// cacheKey 规范化查询文本：小写、折叠空白。
func cacheKey(ownerID, query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return ownerID + "|" + normalized
}
