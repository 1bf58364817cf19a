package contextopt

import (
	"Minerva/internal/config"
	"Minerva/internal/models"
	"sort"
	"strings"
)

// 各级别的默认 token 预算，可被配置覆盖。
var defaultBudgets = map[models.ContextLevel]int{
	models.ContextLight:     512,
	models.ContextRecent:    1024,
	models.ContextSelective: 2048,
	models.ContextFull:      4096,
}

const (
	defaultRecentTurns = 4
	defaultTopKFacts   = 5
	lightMemoryHits    = 2
)

// Inputs 是上下文优化器的全部候选材料。级别只决定从中选取的广度，
// 打包算法对所有级别一致。
type Inputs struct {
	MemoryHits   []models.ScoredRecord     // 已按相似度降序排列。
	Conversation []models.ConversationTurn // 按时间升序排列。
	Knowledge    []models.KnowledgeFact
}

// Optimizer 在 token 预算内装配上下文包。
type Optimizer struct {
	counter     *TokenCounter
	budgets     map[models.ContextLevel]int
	recentTurns int
	topKFacts   int
}

// New 根据配置创建上下文优化器。
func New(cfg config.ContextConfig) *Optimizer {
	budgets := make(map[models.ContextLevel]int, len(defaultBudgets))
	for level, def := range defaultBudgets {
		budgets[level] = def
		if v, ok := cfg.Budgets[string(level)]; ok && v > 0 {
			budgets[level] = v
		}
	}

	recentTurns := cfg.RecentTurns
	if recentTurns <= 0 {
		recentTurns = defaultRecentTurns
	}
	topK := cfg.TopKFacts
	if topK <= 0 {
		topK = defaultTopKFacts
	}

	return &Optimizer{
		counter:     NewTokenCounter(),
		budgets:     budgets,
		recentTurns: recentTurns,
		topKFacts:   topK,
	}
}

// Assemble 按级别选取候选片段，再以权重降序贪心打包进预算。
// 装不下的片段先尝试在句子边界截断，截断后仍放不下任何句子则跳过。
// 产出的包总是满足 TokensUsed <= TokenBudget。
func (o *Optimizer) Assemble(level models.ContextLevel, in Inputs) models.ContextBundle {
	budget, ok := o.budgets[level]
	if !ok {
		level = models.ContextRecent
		budget = o.budgets[level]
	}

	candidates := o.collect(level, in)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Weight > candidates[j].Weight
	})

	bundle := models.ContextBundle{
		Level:       level,
		TokenBudget: budget,
		Fragments:   make([]models.Fragment, 0, len(candidates)),
	}
	for _, cand := range candidates {
		remaining := budget - bundle.TokensUsed
		if remaining <= 0 {
			break
		}

		tokens := o.counter.Count(cand.Text)
		if tokens > remaining {
			truncated, truncTokens := o.truncateToFit(cand.Text, remaining)
			if truncated == "" {
				continue
			}
			cand.Text = truncated
			tokens = truncTokens
		}

		cand.TokenCount = tokens
		bundle.Fragments = append(bundle.Fragments, cand)
		bundle.TokensUsed += tokens
	}
	return bundle
}

// collect 按级别挑选候选片段。Light 只取最相关的少量记忆；
// Recent 追加最近几轮会话；Selective 追加高相关知识；Full 取全部。
func (o *Optimizer) collect(level models.ContextLevel, in Inputs) []models.Fragment {
	var out []models.Fragment

	memoryLimit := lightMemoryHits
	if level == models.ContextFull {
		memoryLimit = len(in.MemoryHits)
	}
	for i, hit := range in.MemoryHits {
		if i >= memoryLimit {
			break
		}
		out = append(out, models.Fragment{
			Source: "memory",
			Text:   hit.Record.Text,
			Weight: hit.Similarity,
		})
	}

	if level == models.ContextRecent || level == models.ContextSelective || level == models.ContextFull {
		turns := in.Conversation
		if level != models.ContextFull && len(turns) > o.recentTurns {
			turns = turns[len(turns)-o.recentTurns:]
		}
		for i, turn := range turns {
			// 越新的轮次权重越高。
			weight := 0.9 - 0.1*float64(len(turns)-1-i)
			if weight < 0.3 {
				weight = 0.3
			}
			out = append(out, models.Fragment{
				Source: "conversation",
				Text:   turn.Role + ": " + turn.Text,
				Weight: weight,
			})
		}
	}

	if level == models.ContextSelective || level == models.ContextFull {
		facts := make([]models.KnowledgeFact, len(in.Knowledge))
		copy(facts, in.Knowledge)
		sort.SliceStable(facts, func(i, j int) bool {
			return facts[i].Relevance > facts[j].Relevance
		})
		factLimit := o.topKFacts
		if level == models.ContextFull {
			factLimit = len(facts)
		}
		for i, fact := range facts {
			if i >= factLimit {
				break
			}
			out = append(out, models.Fragment{
				Source: "knowledge",
				Text:   fact.Text,
				// 知识片段整体让位于记忆和会话。
				Weight: fact.Relevance * 0.8,
			})
		}
	}

	return out
}

// truncateToFit 在句子边界截断文本使其放进剩余预算，
// 一个完整句子都放不下时返回空串。
func (o *Optimizer) truncateToFit(text string, budget int) (string, int) {
	sentences := splitSentences(text)
	var sb strings.Builder
	kept := ""
	keptTokens := 0
	for _, s := range sentences {
		sb.WriteString(s)
		tokens := o.counter.Count(sb.String())
		if tokens > budget {
			break
		}
		kept = sb.String()
		keptTokens = tokens
	}
	return strings.TrimSpace(kept), keptTokens
}

// splitSentences 把文本切成带结束标点的句子片段。
func splitSentences(text string) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			out = append(out, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}
