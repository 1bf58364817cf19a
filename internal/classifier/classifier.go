package classifier

import (
	"Minerva/internal/models"
	"regexp"
	"strings"
	"unicode"
)

// 各意图的线索词表。分类是确定性的规则求值：按 个人 -> 教学 -> 时效
// 的固定顺序检查，第一个命中的类别胜出，都不命中则回落到 general。
// 单词线索按分词后的整词匹配，短语线索按子串匹配。
var (
	personalWords   = []string{"my", "mine", "our", "remember"}
	personalPhrases = []string{
		"remind me", "i am", "i'm", "i like", "i live", "i work",
		"do you know", "about me",
	}

	teachingWords   = []string{"explain", "teach", "define"}
	teachingPhrases = []string{
		"how does", "how do", "what is", "what are", "why does",
		"difference between", "walk me through",
	}

	temporalWords = []string{
		"today", "tonight", "tomorrow", "yesterday", "currently",
		"latest", "recent", "news", "weather", "score",
	}
	temporalPhrases = []string{"right now", "this week", "stock price"}

	yearPattern = regexp.MustCompile(`\b20\d{2}\b`)
)

// Classify 对查询文本做规则分类。纯函数：同一输入永远产生同一结果，
// 不发起任何 I/O。
func Classify(text string) models.ClassificationResult {
	lowered := strings.ToLower(strings.TrimSpace(text))
	words := wordSet(lowered)

	if hits := countCues(lowered, words, personalWords, personalPhrases); hits > 0 {
		return models.ClassificationResult{
			Intent:      models.IntentPersonal,
			NeedsMemory: true,
			Confidence:  confidence(hits),
		}
	}

	if hits := countCues(lowered, words, teachingWords, teachingPhrases); hits > 0 {
		return models.ClassificationResult{
			Intent:     models.IntentTeaching,
			Confidence: confidence(hits),
		}
	}

	temporalHits := countCues(lowered, words, temporalWords, temporalPhrases)
	if yearPattern.MatchString(lowered) {
		temporalHits++
	}
	if temporalHits > 0 {
		return models.ClassificationResult{
			Intent:         models.IntentTimeSensitive,
			NeedsWebSearch: true,
			Confidence:     confidence(temporalHits),
		}
	}

	return models.ClassificationResult{
		Intent:     models.IntentGeneral,
		Confidence: 0.5,
	}
}

func wordSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func countCues(text string, words map[string]struct{}, wordCues, phraseCues []string) int {
	hits := 0
	for _, cue := range wordCues {
		if _, ok := words[cue]; ok {
			hits++
		}
	}
	for _, cue := range phraseCues {
		if strings.Contains(text, cue) {
			hits++
		}
	}
	return hits
}

// confidence 按命中线索数给出 0.6 起步、0.95 封顶的置信度。
func confidence(hits int) float64 {
	c := 0.6 + 0.15*float64(hits-1)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
