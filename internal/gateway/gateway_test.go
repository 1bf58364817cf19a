package gateway

import (
	"Minerva/internal/llm"
	"Minerva/internal/models"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// fakeEmbedder fails a configurable number of times before succeeding.
type fakeEmbedder struct {
	name  string
	fails int
	calls int
	vec   []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, errors.New("boom")
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

type fakeCompleter struct {
	name  string
	fails int
	calls int
	text  string
}

func (f *fakeCompleter) Generate(ctx context.Context, prompt string, params llm.CompletionParams) (string, error) {
	f.calls++
	if f.calls <= f.fails {
		return "", fmt.Errorf("simulated timeout: %w", context.DeadlineExceeded)
	}
	return f.text, nil
}

func newTestGateway(embedders []EmbeddingCandidate, completers []CompletionCandidate) *Gateway {
	return NewWithCandidates(embedders, completers, 32, 30*time.Second, 10*time.Minute, nil)
}

func TestCompleteFallbackOrdering(t *testing.T) {
	// Providers 1 and 2 always fail; invoke must land on provider 3 and,
	// on the next call, must not retry 1 and 2 while their circuits are open.
	p1 := &fakeCompleter{name: "p1", fails: 1000}
	p2 := &fakeCompleter{name: "p2", fails: 1000}
	p3 := &fakeCompleter{name: "p3", text: "ok"}
	g := newTestGateway(nil, []CompletionCandidate{
		{Name: "p1", Timeout: time.Second, Model: p1},
		{Name: "p2", Timeout: time.Second, Model: p2},
		{Name: "p3", Timeout: time.Second, Model: p3},
	})

	text, provider, err := g.Complete(context.Background(), "hi", llm.CompletionParams{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "ok" || provider != "p3" {
		t.Errorf("expected p3/ok, got %s/%s", provider, text)
	}
	if p1.calls != 1 || p2.calls != 1 {
		t.Errorf("expected exactly one attempt each on p1/p2, got %d/%d", p1.calls, p2.calls)
	}

	// Second call: circuits for p1 and p2 are open, only p3 is attempted.
	_, provider, err = g.Complete(context.Background(), "hi again", llm.CompletionParams{})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if provider != "p3" {
		t.Errorf("expected p3, got %s", provider)
	}
	if p1.calls != 1 || p2.calls != 1 {
		t.Errorf("open circuits were ignored: p1=%d p2=%d attempts", p1.calls, p2.calls)
	}
}

func TestCompleteRetriesAfterCooldown(t *testing.T) {
	p1 := &fakeCompleter{name: "p1", fails: 1, text: "recovered"}
	p2 := &fakeCompleter{name: "p2", text: "backup"}
	g := NewWithCandidates(nil, []CompletionCandidate{
		{Name: "p1", Timeout: time.Second, Model: p1},
		{Name: "p2", Timeout: time.Second, Model: p2},
	}, 32, 30*time.Second, 10*time.Minute, nil)

	base := time.Now()
	g.now = func() time.Time { return base }

	_, provider, _ := g.Complete(context.Background(), "x", llm.CompletionParams{})
	if provider != "p2" {
		t.Fatalf("expected fallback to p2, got %s", provider)
	}

	// Before the cool-down elapses p1 must still be skipped.
	g.now = func() time.Time { return base.Add(10 * time.Second) }
	_, provider, _ = g.Complete(context.Background(), "x", llm.CompletionParams{})
	if provider != "p2" {
		t.Fatalf("p1 attempted before cool-down elapsed, got %s", provider)
	}
	if p1.calls != 1 {
		t.Fatalf("expected 1 attempt on p1, got %d", p1.calls)
	}

	// After the cool-down p1 is eligible again and now succeeds.
	g.now = func() time.Time { return base.Add(31 * time.Second) }
	_, provider, _ = g.Complete(context.Background(), "x", llm.CompletionParams{})
	if provider != "p1" {
		t.Fatalf("expected p1 after cool-down, got %s", provider)
	}
}

func TestCompleteExhausted(t *testing.T) {
	g := newTestGateway(nil, []CompletionCandidate{
		{Name: "a", Timeout: time.Second, Model: &fakeCompleter{fails: 1000}},
		{Name: "b", Timeout: time.Second, Model: &fakeCompleter{fails: 1000}},
		{Name: "c", Timeout: time.Second, Model: &fakeCompleter{fails: 1000}},
	})

	text, _, err := g.Complete(context.Background(), "hi", llm.CompletionParams{})
	if !models.IsKind(err, models.ErrKindProviderExhausted) {
		t.Fatalf("expected ProviderExhausted, got %v", err)
	}
	if text != "" {
		t.Errorf("no partial content may be emitted, got %q", text)
	}
}

func TestEmbedFallsBackToDeterministicVector(t *testing.T) {
	g := newTestGateway([]EmbeddingCandidate{
		{Name: "e1", Dim: 8, Timeout: time.Second, Model: &fakeEmbedder{fails: 1000}},
	}, nil)

	v1, provider, err := g.Embed(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if provider != FallbackProviderName {
		t.Fatalf("expected fallback provider, got %s", provider)
	}
	if len(v1) != g.FallbackDim() {
		t.Fatalf("expected dim %d, got %d", g.FallbackDim(), len(v1))
	}

	// Deterministic: the same text always hashes to the same vector.
	v2, _, _ := g.Embed(context.Background(), "hello world")
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("fallback embedding not deterministic at index %d", i)
		}
	}
}

func TestEmbedUsesHealthyProvider(t *testing.T) {
	want := []float32{1, 0, 0}
	g := newTestGateway([]EmbeddingCandidate{
		{Name: "e1", Dim: 3, Timeout: time.Second, Model: &fakeEmbedder{vec: want}},
	}, nil)

	vec, provider, err := g.Embed(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if provider != "e1" || len(vec) != 3 {
		t.Errorf("expected e1 with 3-dim vector, got %s with %d", provider, len(vec))
	}
}

func TestResetStaleClosesElapsedCircuits(t *testing.T) {
	p1 := &fakeCompleter{fails: 1, text: "ok"}
	g := NewWithCandidates(nil, []CompletionCandidate{
		{Name: "p1", Timeout: time.Second, Model: p1},
	}, 32, 30*time.Second, 10*time.Minute, nil)

	base := time.Now()
	g.now = func() time.Time { return base }
	_, _, err := g.Complete(context.Background(), "x", llm.CompletionParams{})
	if !models.IsKind(err, models.ErrKindProviderExhausted) {
		t.Fatalf("expected exhausted on first call, got %v", err)
	}

	g.now = func() time.Time { return base.Add(time.Minute) }
	g.ResetStale()

	snap := g.Health()["p1"]
	if snap.ConsecutiveFailures != 0 || snap.CircuitOpenUntil != nil {
		t.Errorf("expected healthy snapshot after ResetStale, got %+v", snap)
	}
}
