package classifier

import (
	"Minerva/internal/models"
	"strings"
	"unicode"
)

// DefaultMaxInputLength 是未配置时的输入长度上限（按 rune 计）。
const DefaultMaxInputLength = 8192

// ValidateInput 清洗并校验入站文本：剥离控制字符（保留换行和制表符），
// 空输入或超长输入直接拒绝。超长绝不静默截断，截断会改变用户的问题。
func ValidateInput(text string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxInputLength
	}

	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", models.NewPipelineError(models.ErrKindInputRejected, "输入为空", nil)
	}
	if len([]rune(cleaned)) > maxLength {
		return "", models.NewPipelineError(models.ErrKindInputRejected, "输入超出长度上限", nil)
	}
	return cleaned, nil
}
