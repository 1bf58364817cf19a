package llm

import (
	"context"
	"sync"
	"testing"
)

func TestGeminiConcurrentGenerateKeepsParamsPerCall(t *testing.T) {
	g, err := NewGemini(context.Background(), "gemini-2.0-flash", "test-key")
	if err != nil {
		t.Fatalf("NewGemini failed: %v", err)
	}

	// A canceled context makes each call fail fast without the network,
	// after the request has been assembled from the generation config.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			temp := float32(0.2)
			if i%2 == 0 {
				temp = 0.7
			}
			_, _ = g.Generate(ctx, "hello", CompletionParams{Temperature: temp, MaxTokens: 64})
		}(i)
	}
	wg.Wait()

	if g.model.Temperature != nil {
		t.Errorf("shared model temperature mutated to %v", *g.model.Temperature)
	}
	if g.model.MaxOutputTokens != nil {
		t.Errorf("shared model max output tokens mutated to %v", *g.model.MaxOutputTokens)
	}
}
