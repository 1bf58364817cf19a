package models

// ContextLevel 表示上下文压缩级别。四个级别只控制候选材料的选择广度，
// 打包算法完全一致。
type ContextLevel string

const (
	ContextLight     ContextLevel = "light"     // 仅最近 1-2 条记忆命中。
	ContextRecent    ContextLevel = "recent"    // Light + 最近 N 轮会话。
	ContextSelective ContextLevel = "selective" // Recent + 按相关度选出的 Top-K 知识。
	ContextFull      ContextLevel = "full"      // 所有可用候选。
)

// Fragment 是上下文包中的一个片段。
type Fragment struct {
	Source     string  `json:"source"` // 片段来源："memory"、"conversation"、"knowledge"。
	Text       string  `json:"text"`
	Weight     float64 `json:"weight"`
	TokenCount int     `json:"token_count"`
}

// ContextBundle 是按 token 预算装配的上下文包。
// 不变式：TokensUsed <= TokenBudget；Fragments 按权重降序排列，
// 预算压力下总是先丢弃权重最低的尾部。
type ContextBundle struct {
	Level       ContextLevel `json:"level"`
	Fragments   []Fragment   `json:"fragments"`
	TokenBudget int          `json:"token_budget"`
	TokensUsed  int          `json:"tokens_used"`
}
