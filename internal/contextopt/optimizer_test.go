package contextopt

import (
	"Minerva/internal/config"
	"Minerva/internal/models"
	"strings"
	"testing"
	"time"
)

func sampleInputs() Inputs {
	now := time.Now()
	return Inputs{
		MemoryHits: []models.ScoredRecord{
			{Record: &models.MemoryRecord{ID: "m1", Text: "User's name is Kunal."}, Similarity: 0.92},
			{Record: &models.MemoryRecord{ID: "m2", Text: "User prefers metric units."}, Similarity: 0.81},
			{Record: &models.MemoryRecord{ID: "m3", Text: "User lives in Berlin."}, Similarity: 0.64},
		},
		Conversation: []models.ConversationTurn{
			{Role: "user", Text: "What's the weather like?", CreatedAt: now.Add(-2 * time.Minute)},
			{Role: "assistant", Text: "I don't have live weather data.", CreatedAt: now.Add(-time.Minute)},
		},
		Knowledge: []models.KnowledgeFact{
			{ID: "k1", Text: "Berlin is the capital of Germany.", Relevance: 0.7},
			{ID: "k2", Text: "The metric system uses meters.", Relevance: 0.9},
		},
	}
}

func sources(bundle models.ContextBundle) map[string]int {
	out := make(map[string]int)
	for _, f := range bundle.Fragments {
		out[f.Source]++
	}
	return out
}

func TestLevelControlsCandidateBreadth(t *testing.T) {
	opt := New(config.ContextConfig{})
	in := sampleInputs()

	light := opt.Assemble(models.ContextLight, in)
	got := sources(light)
	if got["memory"] > 2 || got["conversation"] != 0 || got["knowledge"] != 0 {
		t.Errorf("light level pulled in too much: %v", got)
	}

	recent := opt.Assemble(models.ContextRecent, in)
	got = sources(recent)
	if got["conversation"] == 0 {
		t.Error("recent level should include conversation turns")
	}
	if got["knowledge"] != 0 {
		t.Errorf("recent level must not include knowledge, got %v", got)
	}

	selective := opt.Assemble(models.ContextSelective, in)
	if sources(selective)["knowledge"] == 0 {
		t.Error("selective level should include knowledge facts")
	}

	full := opt.Assemble(models.ContextFull, in)
	got = sources(full)
	if got["memory"] != 3 || got["conversation"] != 2 || got["knowledge"] != 2 {
		t.Errorf("full level should include every candidate, got %v", got)
	}
}

func TestBundleNeverExceedsBudget(t *testing.T) {
	opt := New(config.ContextConfig{Budgets: map[string]int{"full": 20}})
	bundle := opt.Assemble(models.ContextFull, sampleInputs())

	if bundle.TokensUsed > bundle.TokenBudget {
		t.Fatalf("bundle over budget: %d > %d", bundle.TokensUsed, bundle.TokenBudget)
	}
	if bundle.TokenBudget != 20 {
		t.Errorf("expected configured budget 20, got %d", bundle.TokenBudget)
	}
	for i := 1; i < len(bundle.Fragments); i++ {
		if bundle.Fragments[i].Weight > bundle.Fragments[i-1].Weight {
			t.Errorf("fragments not sorted by weight: %f after %f",
				bundle.Fragments[i].Weight, bundle.Fragments[i-1].Weight)
		}
	}
}

func TestOversizedFragmentTruncatedAtSentenceBoundary(t *testing.T) {
	opt := New(config.ContextConfig{Budgets: map[string]int{"light": 15}})
	in := Inputs{
		MemoryHits: []models.ScoredRecord{
			{
				Record: &models.MemoryRecord{
					ID:   "m1",
					Text: "The first sentence runs roughly forty chars. The second sentence also runs quite long here. The third one would never fit in the budget.",
				},
				Similarity: 0.9,
			},
		},
	}

	bundle := opt.Assemble(models.ContextLight, in)
	if len(bundle.Fragments) != 1 {
		t.Fatalf("expected the fragment kept in truncated form, got %d fragments", len(bundle.Fragments))
	}
	text := bundle.Fragments[0].Text
	if !strings.HasSuffix(text, ".") {
		t.Errorf("truncation must end on a sentence boundary, got %q", text)
	}
	if strings.Contains(text, "third") {
		t.Errorf("truncated text should have dropped trailing sentences, got %q", text)
	}
	if bundle.TokensUsed > bundle.TokenBudget {
		t.Errorf("truncated bundle over budget: %d > %d", bundle.TokensUsed, bundle.TokenBudget)
	}
}

func TestFragmentSkippedWhenNoSentenceFits(t *testing.T) {
	opt := New(config.ContextConfig{Budgets: map[string]int{"light": 2}})
	in := Inputs{
		MemoryHits: []models.ScoredRecord{
			{
				Record:     &models.MemoryRecord{ID: "m1", Text: "This single sentence is far too long to squeeze into a two token budget no matter what."},
				Similarity: 0.9,
			},
			{Record: &models.MemoryRecord{ID: "m2", Text: "Short."}, Similarity: 0.5},
		},
	}

	bundle := opt.Assemble(models.ContextLight, in)
	for _, f := range bundle.Fragments {
		if strings.Contains(f.Text, "squeeze") {
			t.Errorf("oversized fragment should have been skipped, got %q", f.Text)
		}
	}
	if bundle.TokensUsed > bundle.TokenBudget {
		t.Errorf("bundle over budget: %d > %d", bundle.TokensUsed, bundle.TokenBudget)
	}
}
