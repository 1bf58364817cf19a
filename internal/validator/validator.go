package validator

import (
	"Minerva/internal/config"
	"Minerva/internal/models"
	"strings"
	"unicode"
)

const (
	minClaimTokens       = 4
	entailmentThreshold  = 0.5
	contradictionPenalty = 0.2
	defaultConfidence    = 0.7 // 触发重新生成的默认阈值。
)

// 不参与重叠计算的高频虚词。
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"of": {}, "to": {}, "in": {}, "on": {}, "at": {}, "and": {}, "or": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "with": {}, "for": {},
}

var negations = map[string]struct{}{
	"not": {}, "no": {}, "never": {}, "cannot": {}, "can't": {}, "don't": {},
	"doesn't": {}, "isn't": {}, "aren't": {}, "wasn't": {}, "won't": {},
}

// Validator 对生成的回复做轻量事实核查：抽取断言，和上下文片段做
// 词项蕴含比对，并检测否定极性矛盾。它只产出元数据，从不修改回复文本。
type Validator struct {
	threshold float64
}

// New 创建响应校验器。threshold 低于该值时编排器会触发一次重新生成。
func New(cfg config.ValidatorConfig) *Validator {
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultConfidence
	}
	return &Validator{threshold: threshold}
}

// Threshold 返回触发重新生成的置信度阈值。
func (v *Validator) Threshold() float64 { return v.threshold }

// Validate 核查回复中的断言。没有可核查的断言或没有上下文片段时，
// 返回 validation_inconclusive 错误，调用方按 fail-open 处理。
func (v *Validator) Validate(response string, bundle models.ContextBundle) (*models.ValidationResult, error) {
	claims := ExtractClaims(response)
	if len(claims) == 0 {
		return nil, models.NewPipelineError(models.ErrKindValidationInconclusive, "回复中没有可核查的断言", nil)
	}
	if len(bundle.Fragments) == 0 {
		return nil, models.NewPipelineError(models.ErrKindValidationInconclusive, "没有可供比对的上下文片段", nil)
	}

	result := &models.ValidationResult{}
	supported := 0
	for _, claim := range claims {
		check := models.FactCheck{Claim: claim}
		claimTerms, claimNeg := contentTerms(claim)

		for _, frag := range bundle.Fragments {
			fragTerms, fragNeg := contentTerms(frag.Text)
			overlap := overlapRatio(claimTerms, fragTerms)
			if overlap < entailmentThreshold {
				continue
			}
			if claimNeg != fragNeg {
				// 高度重叠但否定极性相反：记为矛盾而非支持。
				result.Contradictions = append(result.Contradictions, models.Contradiction{
					FragmentA: claim,
					FragmentB: frag.Text,
				})
				continue
			}
			check.Supported = true
			if !containsString(check.SourceIDs, frag.Source) {
				check.SourceIDs = append(check.SourceIDs, frag.Source)
			}
		}

		if check.Supported {
			supported++
		}
		result.FactChecks = append(result.FactChecks, check)
	}

	confidence := float64(supported) / float64(len(claims))
	confidence -= contradictionPenalty * float64(len(result.Contradictions))
	if confidence < 0 {
		confidence = 0
	}
	result.Confidence = confidence
	return result, nil
}

// ExtractClaims 从回复中抽取可核查的断言：长度达到下限的陈述句。
// 疑问句和寒暄短句不参与核查。
func ExtractClaims(response string) []string {
	var claims []string
	for _, sentence := range splitSentences(response) {
		s := strings.TrimSpace(sentence)
		if s == "" || strings.HasSuffix(s, "?") || strings.HasSuffix(s, "？") {
			continue
		}
		if len(tokenize(s)) < minClaimTokens {
			continue
		}
		claims = append(claims, s)
	}
	return claims
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '.', '!', '?', '。', '！', '？', '\n':
			if i > start {
				out = append(out, string(runes[start:i+1]))
			}
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// contentTerms 返回去除虚词后的词项集合，以及文本是否含否定词。
func contentTerms(s string) (map[string]struct{}, bool) {
	terms := make(map[string]struct{})
	neg := false
	for _, tok := range tokenize(s) {
		if _, ok := negations[tok]; ok {
			neg = true
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		terms[tok] = struct{}{}
	}
	return terms, neg
}

// overlapRatio 计算 claim 词项被 fragment 覆盖的比例。
func overlapRatio(claim, frag map[string]struct{}) float64 {
	if len(claim) == 0 {
		return 0
	}
	matched := 0
	for t := range claim {
		if _, ok := frag[t]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(claim))
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
