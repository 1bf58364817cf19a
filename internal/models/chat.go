package models

import "time"

// ChatOptions 是入站请求的可选项。
type ChatOptions struct {
	IncludeMemory      *bool `json:"includeMemory"`
	IncludeSuggestions bool  `json:"includeSuggestions"`
}

// MemoryEnabled 报告本次请求是否允许访问长期记忆。
// 未显式给出时默认允许；显式 false 同时禁用检索和回写。
func (o ChatOptions) MemoryEnabled() bool {
	return o.IncludeMemory == nil || *o.IncludeMemory
}

// ChatRequest 是来自（范围外的）Web 前端的入站请求。
type ChatRequest struct {
	OwnerID        string      `json:"ownerId" binding:"required"`
	Text           string      `json:"text" binding:"required"`
	ConversationID string      `json:"conversationId"`
	Options        ChatOptions `json:"options"`
}

// ConversationTurn 是会话历史中的一轮。
type ConversationTurn struct {
	Role      string    `json:"role"` // "user" 或 "assistant"。
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// KnowledgeFact 是知识库中的一条事实，供上下文优化器和响应校验器使用。
type KnowledgeFact struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"` // 相对当前查询的相关度，0-1。
}

// ResponseMetadata 是附加在出站响应上的元数据。
type ResponseMetadata struct {
	Classification  ClassificationResult `json:"classification"`
	ProvidersUsed   []string             `json:"providersUsed"`
	MemoryHitsFound int                  `json:"memoryHitsFound"`
	Validation      *ValidationResult    `json:"validation,omitempty"`
	WebSearch       *SearchDecision      `json:"webSearch,omitempty"`
	Suggestions     []string             `json:"suggestions,omitempty"`
	Degraded        bool                 `json:"degraded"`
	DegradedReasons []string             `json:"degradedReasons,omitempty"`
}

// SearchDecision 是外部搜索决策引擎的输出。
type SearchDecision struct {
	ShouldSearch bool   `json:"shouldSearch"`
	Reason       string `json:"reason"`
}

// ChatResponse 是出站响应。
type ChatResponse struct {
	Content  string           `json:"content"`
	Metadata ResponseMetadata `json:"metadata"`
}

// ErrorResponse 是致命错误的出站负载：简短、可区分，绝不携带部分内容。
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}
