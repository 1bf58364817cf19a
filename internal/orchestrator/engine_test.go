package orchestrator

import (
	"Minerva/internal/config"
	"Minerva/internal/contextopt"
	"Minerva/internal/gateway"
	"Minerva/internal/llm"
	"Minerva/internal/memory"
	"Minerva/internal/models"
	"Minerva/internal/validator"
	"Minerva/internal/websearch"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type scriptedLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (s *scriptedLLM) Generate(_ context.Context, prompt string, _ llm.CompletionParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *scriptedLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

type failingStore struct{}

func (failingStore) Put(context.Context, *models.MemoryRecord) error { return errors.New("store down") }
func (failingStore) Get(context.Context, string) (*models.MemoryRecord, error) {
	return nil, errors.New("store down")
}
func (failingStore) QueryByOwner(context.Context, string, memory.RecordFilter) ([]*models.MemoryRecord, error) {
	return nil, errors.New("store down")
}
func (failingStore) Delete(context.Context, string) error { return errors.New("store down") }

func newTestEngine(t *testing.T, store memory.Persistence, model llm.LLM) *Engine {
	t.Helper()

	g := gateway.NewWithCandidates(nil, []gateway.CompletionCandidate{
		{Name: "scripted", Timeout: time.Second, Model: model},
	}, 64, 30*time.Second, 10*time.Minute, nil)

	search, err := websearch.NewEngine(config.WebSearchConfig{CacheCapacity: 16}, nil, nil)
	if err != nil {
		t.Fatalf("websearch.NewEngine failed: %v", err)
	}

	var svc *memory.Service
	if store != nil {
		svc = memory.NewService(store, g, nil)
	}

	return NewEngine(Deps{
		Gateway:   g,
		Memory:    svc,
		Optimizer: contextopt.New(config.ContextConfig{}),
		Search:    search,
		Validator: validator.New(config.ValidatorConfig{}),
	}, config.MemoryConfig{}, config.ClassifierConfig{})
}

func seedMemory(t *testing.T, store *memory.InMemoryStore, ownerID, text string) {
	t.Helper()
	err := store.Put(context.Background(), &models.MemoryRecord{
		ID: fmt.Sprintf("seed-%d", store.Len()), OwnerID: ownerID, Text: text,
		Importance: 0.8, CreatedAt: time.Now(), Active: true,
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestHandleUsesMemoryForPersonalQuery(t *testing.T) {
	store := memory.NewInMemoryStore()
	seedMemory(t, store, "kunal", "My name is Kunal")
	model := &scriptedLLM{reply: "Yes, your name is Kunal and you told me so."}
	e := newTestEngine(t, store, model)

	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "kunal", Text: "Do you know my name?",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Metadata.MemoryHitsFound == 0 {
		t.Error("personal query should surface the stored memory")
	}
	if !strings.Contains(model.lastPrompt(), "My name is Kunal") {
		t.Error("prompt should carry the retrieved memory fragment")
	}
	if resp.Metadata.Classification.Intent != models.IntentPersonal {
		t.Errorf("expected personal intent, got %s", resp.Metadata.Classification.Intent)
	}
	if len(resp.Metadata.ProvidersUsed) == 0 || resp.Metadata.ProvidersUsed[0] != "scripted" {
		t.Errorf("expected provider attribution, got %v", resp.Metadata.ProvidersUsed)
	}
}

func TestHandleDeliversDegradedWhenMemoryFails(t *testing.T) {
	model := &scriptedLLM{reply: "I cannot recall anything about you right now, sorry."}
	e := newTestEngine(t, failingStore{}, model)

	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Do you remember my favorite color?",
	})
	if err != nil {
		t.Fatalf("memory outage must not fail the request: %v", err)
	}
	if !resp.Metadata.Degraded {
		t.Error("response should be flagged degraded")
	}
	found := false
	for _, r := range resp.Metadata.DegradedReasons {
		if r == string(models.ErrKindMemoryUnavailable) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected memory_unavailable in degraded reasons, got %v", resp.Metadata.DegradedReasons)
	}
	if resp.Content == "" {
		t.Error("degraded response must still carry content")
	}
}

func TestHandleFailsWhenProvidersExhausted(t *testing.T) {
	model := &scriptedLLM{err: errors.New("backend down")}
	e := newTestEngine(t, nil, model)

	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Tell a joke",
	})
	if !models.IsKind(err, models.ErrKindProviderExhausted) {
		t.Fatalf("expected provider_exhausted, got %v", err)
	}
	if resp != nil {
		t.Error("failed request must not return partial content")
	}
}

func TestHandleRejectsOversizedInput(t *testing.T) {
	model := &scriptedLLM{reply: "ok"}
	e := NewEngine(Deps{
		Gateway:   gateway.NewWithCandidates(nil, []gateway.CompletionCandidate{{Name: "scripted", Timeout: time.Second, Model: model}}, 64, time.Second, time.Minute, nil),
		Optimizer: contextopt.New(config.ContextConfig{}),
		Search:    mustSearchEngine(t),
		Validator: validator.New(config.ValidatorConfig{}),
	}, config.MemoryConfig{}, config.ClassifierConfig{MaxInputLength: 10})

	_, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: strings.Repeat("a", 11),
	})
	if !models.IsKind(err, models.ErrKindInputRejected) {
		t.Fatalf("expected input_rejected, got %v", err)
	}
	if model.callCount() != 0 {
		t.Error("rejected input must never reach a provider")
	}
}

func TestHandleRegeneratesOnLowValidationConfidence(t *testing.T) {
	store := memory.NewInMemoryStore()
	seedMemory(t, store, "u1", "my city is Berlin")
	model := &scriptedLLM{reply: "Your town is certainly someplace quite warm and sunny."}
	e := newTestEngine(t, store, model)

	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "What is my city",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if model.callCount() != 2 {
		t.Fatalf("unsupported answer should trigger exactly one regeneration, got %d calls", model.callCount())
	}
	if !strings.Contains(model.lastPrompt(), "strictly") {
		t.Error("regeneration should use the grounded preamble")
	}
	found := false
	for _, r := range resp.Metadata.DegradedReasons {
		if r == "low_validation_confidence" {
			found = true
		}
	}
	if !found {
		t.Errorf("persistently low confidence should be flagged, got %v", resp.Metadata.DegradedReasons)
	}
}

func TestHandleCarriesConversationHistory(t *testing.T) {
	store := memory.NewInMemoryStore()
	seedMemory(t, store, "u1", "my name is Ada")
	model := &scriptedLLM{reply: "Your name is Ada, you told me earlier today here."}
	e := newTestEngine(t, store, model)

	req := models.ChatRequest{OwnerID: "u1", Text: "Do you know my name?", ConversationID: "c1"}
	if _, err := e.Handle(context.Background(), req); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}

	req.Text = "And what did I just ask about my name?"
	if _, err := e.Handle(context.Background(), req); err != nil {
		t.Fatalf("second Handle failed: %v", err)
	}
	if !strings.Contains(model.lastPrompt(), "Do you know my name?") {
		t.Error("second prompt should include the previous conversation turn")
	}
}

func TestHandleMemoryOptOutSkipsLookup(t *testing.T) {
	model := &scriptedLLM{reply: "Here is an answer that uses no personal context at all."}
	e := newTestEngine(t, failingStore{}, model)

	off := false
	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Do you know my name?",
		Options: models.ChatOptions{IncludeMemory: &off},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if resp.Metadata.MemoryHitsFound != 0 {
		t.Errorf("opted-out request must not surface memory hits, got %d", resp.Metadata.MemoryHitsFound)
	}
	for _, r := range resp.Metadata.DegradedReasons {
		if r == string(models.ErrKindMemoryUnavailable) {
			t.Error("opted-out request must never touch the memory store")
		}
	}
}

func TestHandleMemoryOptOutSuppressesWriteBack(t *testing.T) {
	store := memory.NewInMemoryStore()
	seedMemory(t, store, "u1", "my home city is Berlin")
	model := &scriptedLLM{reply: "Understood, I will not keep a record of this exchange."}
	e := newTestEngine(t, store, model)
	e.recorder = NewDirectRecorder(memory.NewService(store, nil, nil))

	off := false
	before := store.Len()
	if _, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Remember that my favorite color is green",
		Options: models.ChatOptions{IncludeMemory: &off},
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if strings.Contains(model.lastPrompt(), "Berlin") {
		t.Error("opted-out prompt must not carry stored memories")
	}
	time.Sleep(100 * time.Millisecond)
	if store.Len() != before {
		t.Error("opted-out interaction must not be written back")
	}
}

func TestHandleReturnsSuggestionsOnlyWhenRequested(t *testing.T) {
	model := &scriptedLLM{reply: "Gravity bends spacetime around massive objects, yes indeed."}
	e := newTestEngine(t, nil, model)

	resp, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Explain gravity",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(resp.Metadata.Suggestions) != 0 {
		t.Errorf("suggestions must be opt-in, got %v", resp.Metadata.Suggestions)
	}

	resp, err = e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Explain gravity",
		Options: models.ChatOptions{IncludeSuggestions: true},
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(resp.Metadata.Suggestions) == 0 {
		t.Error("requested suggestions missing from metadata")
	}
}

func TestHandleRecordsInteractionAsync(t *testing.T) {
	store := memory.NewInMemoryStore()
	model := &scriptedLLM{reply: "Nice to meet you, I will keep that in mind."}
	e := newTestEngine(t, store, model)
	e.recorder = NewDirectRecorder(memory.NewService(store, nil, nil))

	before := store.Len()
	if _, err := e.Handle(context.Background(), models.ChatRequest{
		OwnerID: "u1", Text: "Remember that my favorite color is green",
	}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() == before {
		if time.Now().After(deadline) {
			t.Fatal("interaction was not written back")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func mustSearchEngine(t *testing.T) *websearch.Engine {
	t.Helper()
	e, err := websearch.NewEngine(config.WebSearchConfig{CacheCapacity: 16}, nil, nil)
	if err != nil {
		t.Fatalf("websearch.NewEngine failed: %v", err)
	}
	return e
}
