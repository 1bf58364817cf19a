package gateway

import (
	"sync"
	"sync/atomic"
	"time"
)

// providerHealth 是单个提供商的健康状态。写操作只来自网关自身，
// 全部走原子计数，读取方（候选排序）永远不会阻塞热路径。
type providerHealth struct {
	consecutiveFailures atomic.Int32
	lastSuccessAt       atomic.Int64 // unix 纳秒，0 表示从未成功。
	circuitOpenUntil    atomic.Int64 // unix 纳秒，0 表示熔断关闭。
}

// HealthSnapshot 是对外暴露的只读健康快照。
type HealthSnapshot struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	CircuitOpenUntil    *time.Time `json:"circuit_open_until,omitempty"`
}

// HealthTable 维护按提供商名索引的健康状态。表本身用读写锁保护
// （只在首次见到某个提供商时写入），各条目内部全部是原子操作。
type HealthTable struct {
	mu        sync.RWMutex
	providers map[string]*providerHealth

	cooldownSeed time.Duration // 熔断冷却初值，随连续失败次数指数增长。
	cooldownCap  time.Duration // 熔断冷却上限。
}

// NewHealthTable 创建一个健康表。
func NewHealthTable(seed, maxCooldown time.Duration) *HealthTable {
	if seed <= 0 {
		seed = 30 * time.Second
	}
	if maxCooldown <= 0 {
		maxCooldown = 10 * time.Minute
	}
	return &HealthTable{
		providers:    make(map[string]*providerHealth),
		cooldownSeed: seed,
		cooldownCap:  maxCooldown,
	}
}

func (t *HealthTable) get(name string) *providerHealth {
	t.mu.RLock()
	h, ok := t.providers[name]
	t.mu.RUnlock()
	if ok {
		return h
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok = t.providers[name]; ok {
		return h
	}
	h = &providerHealth{}
	t.providers[name] = h
	return h
}

// Available 判断提供商在给定时刻是否可被路由（熔断未打开）。
func (t *HealthTable) Available(name string, now time.Time) bool {
	openUntil := t.get(name).circuitOpenUntil.Load()
	return openUntil == 0 || now.UnixNano() >= openUntil
}

// RecordSuccess 记录一次成功调用，重置失败计数并关闭熔断。
func (t *HealthTable) RecordSuccess(name string, now time.Time) {
	h := t.get(name)
	h.consecutiveFailures.Store(0)
	h.circuitOpenUntil.Store(0)
	h.lastSuccessAt.Store(now.UnixNano())
}

// RecordFailure 记录一次失败调用，并按指数退避打开熔断：
// 冷却时间 = seed * 2^(failures-1)，封顶于冷却上限。
func (t *HealthTable) RecordFailure(name string, now time.Time) {
	h := t.get(name)
	failures := h.consecutiveFailures.Add(1)

	cooldown := t.cooldownSeed
	for i := int32(1); i < failures && cooldown < t.cooldownCap; i++ {
		cooldown *= 2
	}
	if cooldown > t.cooldownCap {
		cooldown = t.cooldownCap
	}
	h.circuitOpenUntil.Store(now.Add(cooldown).UnixNano())
}

// ResetStale 将冷却期已完整度过且此后再无失败的提供商恢复为健康状态。
// 由后台清扫任务定期调用；只基于原子读写，不会阻塞在途请求。
func (t *HealthTable) ResetStale(now time.Time) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, h := range t.providers {
		openUntil := h.circuitOpenUntil.Load()
		if openUntil != 0 && now.UnixNano() >= openUntil {
			h.circuitOpenUntil.Store(0)
			h.consecutiveFailures.Store(0)
		}
	}
}

// Snapshot 返回所有提供商的健康快照，供健康检查接口使用。
func (t *HealthTable) Snapshot() map[string]HealthSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]HealthSnapshot, len(t.providers))
	for name, h := range t.providers {
		snap := HealthSnapshot{
			ConsecutiveFailures: int(h.consecutiveFailures.Load()),
		}
		if ts := h.lastSuccessAt.Load(); ts != 0 {
			v := time.Unix(0, ts)
			snap.LastSuccessAt = &v
		}
		if ts := h.circuitOpenUntil.Load(); ts != 0 {
			v := time.Unix(0, ts)
			snap.CircuitOpenUntil = &v
		}
		out[name] = snap
	}
	return out
}
