package models

import "time"

// SearchMode 表示记忆检索的模式。
type SearchMode string

const (
	SearchModeVector  SearchMode = "vector"  // 仅向量相似度检索。
	SearchModeLexical SearchMode = "lexical" // 仅词法（文本重叠）检索。
	SearchModeHybrid  SearchMode = "hybrid"  // 混合检索：向量 + 词法，合并为同一排序。
)

// MemoryRecord 表示一条用户记忆。记录是只追加的：文本在创建后永不修改，
// 纠正以新记录的形式写入，并通过 tags 引用旧记录。
type MemoryRecord struct {
	ID         string     `json:"id" bson:"_id"`
	OwnerID    string     `json:"owner_id" bson:"owner_id"`
	Text       string     `json:"text" bson:"text"`
	Embedding  []float32  `json:"embedding,omitempty" bson:"embedding,omitempty"` // 为 nil 表示所有嵌入提供商均失败。
	Tags       []string   `json:"tags,omitempty" bson:"tags,omitempty"`
	Importance float64    `json:"importance" bson:"importance"` // 0-1，作者指定或推断。
	CreatedAt  time.Time  `json:"created_at" bson:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Active     bool       `json:"active" bson:"active"`
}

// Expired 判断记录在给定时刻是否已过期。
func (r *MemoryRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// HasTag 判断记录是否携带指定标签。
func (r *MemoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ScoredRecord 是检索结果：记录加上归一化到 0-1 的相似度分数。
type ScoredRecord struct {
	Record     *MemoryRecord `json:"record"`
	Similarity float64       `json:"similarity"`
	Source     string        `json:"source"` // "vector" 或 "lexical"，标记分数来源。
}
