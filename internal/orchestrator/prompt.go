package orchestrator

import (
	"Minerva/internal/models"
	"strings"
)

const systemPreamble = `You are a helpful assistant. Answer the user's question using the context below when it is relevant. If the context does not cover the question, answer from your own knowledge and say so.`

const groundedPreamble = `You are a helpful assistant. Answer the user's question strictly from the context below. If the context does not contain the answer, say you do not know. Do not invent facts.`

// buildPrompt 把上下文包和用户问题装配成发给补全提供商的提示词。
// strict 为 true 时使用只允许引用上下文的前导（用于校验失败后的重新生成）。
func buildPrompt(bundle models.ContextBundle, decision *models.SearchDecision, query string, strict bool) string {
	var sb strings.Builder
	if strict {
		sb.WriteString(groundedPreamble)
	} else {
		sb.WriteString(systemPreamble)
	}
	sb.WriteString("\n\n")

	if len(bundle.Fragments) > 0 {
		writeSection(&sb, bundle, "memory", "Known facts about the user:")
		writeSection(&sb, bundle, "conversation", "Recent conversation:")
		writeSection(&sb, bundle, "knowledge", "Reference knowledge:")
	}

	if decision != nil && decision.ShouldSearch {
		sb.WriteString("Note: this question is time-sensitive and no live data is available. State clearly when your information may be out of date.\n\n")
	}

	sb.WriteString("User question: ")
	sb.WriteString(query)
	return sb.String()
}

// buildSuggestions 按意图生成后续问题建议，仅在请求显式要求时附带。
func buildSuggestions(intent models.Intent, decision models.SearchDecision) []string {
	var out []string
	switch intent {
	case models.IntentPersonal:
		out = append(out, "What else do you remember about me?")
	case models.IntentTeaching:
		out = append(out, "Can you give a concrete example?", "How does this compare to the alternatives?")
	case models.IntentTimeSensitive:
		out = append(out, "What changed most recently?")
	default:
		out = append(out, "Tell me more about this topic.")
	}
	if decision.ShouldSearch {
		out = append(out, "Should I check a live source for the latest information?")
	}
	return out
}

func writeSection(sb *strings.Builder, bundle models.ContextBundle, source, header string) {
	wrote := false
	for _, frag := range bundle.Fragments {
		if frag.Source != source {
			continue
		}
		if !wrote {
			sb.WriteString(header)
			sb.WriteString("\n")
			wrote = true
		}
		sb.WriteString("- ")
		sb.WriteString(frag.Text)
		sb.WriteString("\n")
	}
	if wrote {
		sb.WriteString("\n")
	}
}
