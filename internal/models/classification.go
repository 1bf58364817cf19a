package models

// Intent 表示请求的意图类别。
type Intent string

const (
	IntentPersonal      Intent = "personal"       // 涉及用户个人信息或记忆。
	IntentTeaching      Intent = "teaching"       // 学科讲解类请求。
	IntentGeneral       Intent = "general"        // 默认类别。
	IntentTimeSensitive Intent = "time_sensitive" // 时效性请求，可能需要外部搜索。
)

// ClassificationResult 是分类器对单次请求的输出。每个请求只产生一次，
// 不可变，被所有下游阶段消费。
type ClassificationResult struct {
	Intent         Intent  `json:"intent"`
	NeedsMemory    bool    `json:"needs_memory"`
	NeedsWebSearch bool    `json:"needs_web_search"`
	Confidence     float64 `json:"confidence"` // 0-1。
}
