package orchestrator

import (
	"Minerva/internal/models"
	"Minerva/pkg/util"
	"time"
)

const (
	historyCapacity = 512
	historyTTL      = 2 * time.Hour
	historyMaxTurns = 20
)

// conversationHistory 在进程内按会话 ID 保存最近若干轮对话，
// 供上下文优化器的 Recent 及以上级别使用。
type conversationHistory struct {
	cache *util.LRUCache[string, []models.ConversationTurn]
}

func newConversationHistory() *conversationHistory {
	cache, err := util.NewWithConfig[string, []models.ConversationTurn](util.CacheConfig{
		Capacity: historyCapacity,
		TTL:      historyTTL,
	})
	if err != nil {
		// 容量为常量且大于零，构造不会失败。
		panic(err)
	}
	return &conversationHistory{cache: cache}
}

// Turns 返回会话的历史轮次副本。
func (h *conversationHistory) Turns(conversationID string) []models.ConversationTurn {
	if conversationID == "" {
		return nil
	}
	turns, ok := h.cache.Get(conversationID)
	if !ok {
		return nil
	}
	out := make([]models.ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// Append 追加一轮对话，超出上限时丢弃最旧的轮次。
func (h *conversationHistory) Append(conversationID string, turns ...models.ConversationTurn) {
	if conversationID == "" {
		return
	}
	existing, _ := h.cache.Get(conversationID)
	merged := append(existing, turns...)
	if len(merged) > historyMaxTurns {
		merged = merged[len(merged)-historyMaxTurns:]
	}
	h.cache.Put(conversationID, merged)
}
