package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// FallbackModel 是所有外部嵌入提供商都不可用时的确定性回退嵌入器。
// 它把文本的词条散列到固定维度的桶中并做 L2 归一化：同一文本永远得到
// 同一向量，向量库在厂商全面故障期间仍能持续写入，只是检索质量下降。
type FallbackModel struct {
	dim int
}

// NewFallbackModel 创建一个指定维度的回退嵌入器。
func NewFallbackModel(dim int) *FallbackModel {
	if dim <= 0 {
		dim = 256
	}
	return &FallbackModel{dim: dim}
}

// Dim 返回回退向量的维度。
func (m *FallbackModel) Dim() int { return m.dim }

// Embed 为单个文本生成确定性的散列向量。永远不会返回错误。
func (m *FallbackModel) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, m.dim)
	for _, term := range hashTerms(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		sum := h.Sum32()
		bucket := int(sum % uint32(m.dim))
		// 用散列的最高位决定符号，避免所有分量同号导致向量塌缩。
		if sum&0x80000000 != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// EmbedBatch 为一批文本生成确定性的散列向量。
func (m *FallbackModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := m.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

// hashTerms 把文本切成小写词条。
func hashTerms(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
