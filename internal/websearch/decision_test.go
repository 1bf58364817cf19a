package websearch

import (
	"Minerva/internal/config"
	"Minerva/internal/models"
	"context"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(config.WebSearchConfig{CacheCapacity: 16}, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestDecideRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	dec := e.Decide(ctx, "u1", "What's the weather today?", models.ClassificationResult{
		Intent: models.IntentTimeSensitive, NeedsWebSearch: true,
	})
	if !dec.ShouldSearch {
		t.Error("time-sensitive query should trigger search")
	}

	dec = e.Decide(ctx, "u1", "Do you know my name?", models.ClassificationResult{
		Intent: models.IntentPersonal, NeedsMemory: true,
	})
	if dec.ShouldSearch {
		t.Error("personal query must not trigger search")
	}

	dec = e.Decide(ctx, "u1", "Explain how DNS resolution works", models.ClassificationResult{
		Intent: models.IntentTeaching,
	})
	if dec.ShouldSearch {
		t.Error("definitional question must not trigger search")
	}

	dec = e.Decide(ctx, "u1", "give me the latest on the merger", models.ClassificationResult{
		Intent: models.IntentGeneral,
	})
	if !dec.ShouldSearch {
		t.Error("freshness cue should trigger search even for general intent")
	}
}

func TestDecideCachesByOwnerAndNormalizedQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first := e.Decide(ctx, "u1", "what happened this week?", models.ClassificationResult{
		Intent: models.IntentTimeSensitive, NeedsWebSearch: true,
	})
	if !first.ShouldSearch {
		t.Fatal("expected positive decision")
	}

	// Same owner, same query modulo case and whitespace: the cached
	// decision wins even with a different classification.
	again := e.Decide(ctx, "u1", "  What   HAPPENED this week? ", models.ClassificationResult{
		Intent: models.IntentGeneral,
	})
	if again != first {
		t.Errorf("expected cached decision, got %+v", again)
	}

	// Different owner misses the cache and re-evaluates; the general
	// classification now picks up the freshness cue instead.
	other := e.Decide(ctx, "u2", "what happened this week?", models.ClassificationResult{
		Intent: models.IntentGeneral,
	})
	if other.Reason == first.Reason {
		t.Errorf("expected re-evaluation for different owner, got cached reason %q", other.Reason)
	}
}
