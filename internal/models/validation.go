package models

// FactCheck 是对回复中一条可抽取断言的核查结果。
type FactCheck struct {
	Claim     string   `json:"claim"`
	Supported bool     `json:"supported"`
	SourceIDs []string `json:"source_ids,omitempty"` // 支撑该断言的片段来源。
}

// Contradiction 记录回复断言与上下文片段之间的一处矛盾。
type Contradiction struct {
	FragmentA string `json:"fragment_a"` // 回复中的断言。
	FragmentB string `json:"fragment_b"` // 与之矛盾的上下文片段。
}

// ValidationResult 是响应校验器的输出。它只作为元数据附加在响应上，
// 永远不会修改响应文本本身（fail-open 设计）。
type ValidationResult struct {
	FactChecks     []FactCheck     `json:"fact_checks,omitempty"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	Confidence     float64         `json:"confidence"` // 0-1。
}
