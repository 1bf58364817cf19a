package api

import (
	"Minerva/internal/config"
	"Minerva/internal/contextopt"
	"Minerva/internal/gateway"
	"Minerva/internal/llm"
	"Minerva/internal/memory"
	"Minerva/internal/models"
	"Minerva/internal/orchestrator"
	"Minerva/internal/validator"
	"Minerva/internal/websearch"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type stubLLM struct {
	reply string
	err   error
}

func (s *stubLLM) Generate(context.Context, string, llm.CompletionParams) (string, error) {
	return s.reply, s.err
}

func newTestRouter(t *testing.T, model llm.LLM) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g := gateway.NewWithCandidates(nil, []gateway.CompletionCandidate{
		{Name: "stub", Timeout: time.Second, Model: model},
	}, 64, 30*time.Second, 10*time.Minute, nil)

	search, err := websearch.NewEngine(config.WebSearchConfig{CacheCapacity: 16}, nil, nil)
	if err != nil {
		t.Fatalf("websearch.NewEngine failed: %v", err)
	}

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Gateway:   g,
		Memory:    memory.NewService(memory.NewInMemoryStore(), g, nil),
		Optimizer: contextopt.New(config.ContextConfig{}),
		Search:    search,
		Validator: validator.New(config.ValidatorConfig{}),
	}, config.MemoryConfig{}, config.ClassifierConfig{})

	return SetupRouter(NewHandler(engine, g), config.ServerConfig{})
}

func postChat(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatReturnsResponseWithMetadata(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "Here is a harmless joke for you today, enjoy."})

	w := postChat(t, router, models.ChatRequest{OwnerID: "u1", Text: "Tell a joke"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp models.ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty content")
	}
	if resp.Metadata.Classification.Intent != models.IntentGeneral {
		t.Errorf("expected general intent, got %s", resp.Metadata.Classification.Intent)
	}
	if resp.Metadata.WebSearch == nil {
		t.Error("expected web search decision in metadata")
	}
}

func TestChatRejectsMalformedRequest(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "unused"})

	w := postChat(t, router, map[string]string{"ownerId": "u1"}) // text missing
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Kind != string(models.ErrKindInputRejected) {
		t.Errorf("expected input_rejected kind, got %s", resp.Kind)
	}
}

func TestChatMapsExhaustionToServiceUnavailable(t *testing.T) {
	router := newTestRouter(t, &stubLLM{err: errors.New("backend down")})

	w := postChat(t, router, models.ChatRequest{OwnerID: "u1", Text: "Tell a joke"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Kind != string(models.ErrKindProviderExhausted) {
		t.Errorf("expected provider_exhausted kind, got %s", resp.Kind)
	}
	if !resp.Retryable {
		t.Error("exhaustion should be marked retryable")
	}
}

func TestRateLimitRejectsBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/limited", RateLimit(1, 2), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/limited", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("burst within capacity should pass, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("expected 429 once the bucket is drained, got %v", codes)
	}
}

func TestHealthReportsProviderCircuits(t *testing.T) {
	router := newTestRouter(t, &stubLLM{reply: "fine"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Status    string                            `json:"status"`
		Providers map[string]gateway.HealthSnapshot `json:"providers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("expected ok status, got %s", body.Status)
	}
}
