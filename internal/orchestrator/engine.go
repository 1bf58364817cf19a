package orchestrator

import (
	"Minerva/internal/classifier"
	"Minerva/internal/config"
	"Minerva/internal/contextopt"
	"Minerva/internal/gateway"
	"Minerva/internal/llm"
	"Minerva/internal/memory"
	"Minerva/internal/memory/consumer"
	"Minerva/internal/models"
	"Minerva/internal/validator"
	"Minerva/internal/websearch"
	"Minerva/pkg/logger"
	"context"
	"fmt"
	"sync"
	"time"
)

// Stage 是单次请求在编排引擎内的处理阶段。合法迁移是线性的：
// received -> classified -> memory_resolved -> context_built -> generated ->
// validated -> delivered，failed 是唯一的非线性终态。
type Stage string

const (
	StageReceived       Stage = "received"
	StageClassified     Stage = "classified"
	StageMemoryResolved Stage = "memory_resolved"
	StageContextBuilt   Stage = "context_built"
	StageGenerated      Stage = "generated"
	StageValidated      Stage = "validated"
	StageDelivered      Stage = "delivered"
	StageFailed         Stage = "failed"
)

const (
	defaultLookupTimeout   = 2 * time.Second
	defaultSearchLimit     = 10
	defaultMinSimilarity   = 0.5
	writebackTimeout       = 10 * time.Second
	completionTemperature  = 0.7
	regenTemperature       = 0.2 // 重新生成时收紧采样，贴近上下文。
	defaultMaxOutputTokens = 1024
)

// Engine 把分类、记忆检索、搜索决策、上下文装配、补全和校验串成
// 一条处理流水线。记忆检索和搜索决策并发执行；记忆回写在响应
// 交付后异步进行，永不阻塞请求路径。
type Engine struct {
	gateway   *gateway.Gateway
	memory    *memory.Service
	optimizer *contextopt.Optimizer
	search    *websearch.Engine
	validator *validator.Validator
	recorder  InteractionRecorder
	history   *conversationHistory
	log       *logger.Logger

	maxInputLength int
	searchLimit    int
	minSimilarity  float64
	lookupTimeout  time.Duration
}

// Deps 汇集引擎的全部依赖。recorder 为 nil 时禁用记忆回写。
type Deps struct {
	Gateway   *gateway.Gateway
	Memory    *memory.Service
	Optimizer *contextopt.Optimizer
	Search    *websearch.Engine
	Validator *validator.Validator
	Recorder  InteractionRecorder
	Log       *logger.Logger
}

// NewEngine 创建编排引擎。
func NewEngine(deps Deps, memCfg config.MemoryConfig, clsCfg config.ClassifierConfig) *Engine {
	searchLimit := memCfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = defaultSearchLimit
	}
	minSim := memCfg.MinSimilarity
	if minSim <= 0 {
		minSim = defaultMinSimilarity
	}

	return &Engine{
		gateway:        deps.Gateway,
		memory:         deps.Memory,
		optimizer:      deps.Optimizer,
		search:         deps.Search,
		validator:      deps.Validator,
		recorder:       deps.Recorder,
		history:        newConversationHistory(),
		log:            deps.Log,
		maxInputLength: clsCfg.MaxInputLength,
		searchLimit:    searchLimit,
		minSimilarity:  minSim,
		lookupTimeout:  config.Duration(memCfg.LookupTimeout, defaultLookupTimeout),
	}
}

type memoryOutcome struct {
	hits []models.ScoredRecord
	err  error
}

// Handle 处理一次会话请求。可重试的降级（记忆不可用、校验无结论）
// 体现在响应元数据里；只有输入被拒绝和所有补全提供商耗尽才返回错误。
func (e *Engine) Handle(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	log := e.stageLog(StageReceived, req.OwnerID)
	log.Debug("收到会话请求")

	text, err := classifier.ValidateInput(req.Text, e.maxInputLength)
	if err != nil {
		e.stageLog(StageFailed, req.OwnerID).Warn(fmt.Sprintf("输入被拒绝: %v", err))
		return nil, err
	}

	cls := classifier.Classify(text)
	e.stageLog(StageClassified, req.OwnerID).Debug(fmt.Sprintf("意图=%s 置信度=%.2f", cls.Intent, cls.Confidence))

	// 记忆检索和搜索决策并发执行，二者互不依赖。
	var (
		wg       sync.WaitGroup
		memOut   memoryOutcome
		decision models.SearchDecision
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		memOut = e.lookupMemory(ctx, req, text, cls)
	}()
	go func() {
		defer wg.Done()
		decision = e.search.Decide(ctx, req.OwnerID, text, cls)
	}()
	wg.Wait()

	var degradedReasons []string
	if memOut.err != nil {
		degradedReasons = append(degradedReasons, string(models.ErrKindMemoryUnavailable))
		e.stageLog(StageMemoryResolved, req.OwnerID).Warn(fmt.Sprintf("记忆检索失败，继续降级处理: %v", memOut.err))
	} else {
		e.stageLog(StageMemoryResolved, req.OwnerID).Debug(fmt.Sprintf("记忆命中 %d 条, 搜索决策=%v", len(memOut.hits), decision.ShouldSearch))
	}

	// 带 knowledge 标签的记忆命中作为知识候选参与 Selective 级别的选材。
	var knowledge []models.KnowledgeFact
	for _, hit := range memOut.hits {
		if hit.Record.HasTag("knowledge") {
			knowledge = append(knowledge, models.KnowledgeFact{
				ID: hit.Record.ID, Text: hit.Record.Text, Relevance: hit.Similarity,
			})
		}
	}

	bundle := e.optimizer.Assemble(levelForIntent(cls.Intent), contextopt.Inputs{
		MemoryHits:   memOut.hits,
		Conversation: e.history.Turns(req.ConversationID),
		Knowledge:    knowledge,
	})
	e.stageLog(StageContextBuilt, req.OwnerID).Debug(fmt.Sprintf("上下文就绪: level=%s tokens=%d/%d", bundle.Level, bundle.TokensUsed, bundle.TokenBudget))

	prompt := buildPrompt(bundle, &decision, text, false)
	content, provider, err := e.complete(ctx, prompt, completionTemperature)
	if err != nil {
		e.stageLog(StageFailed, req.OwnerID).Error(fmt.Sprintf("补全失败: %v", err))
		return nil, err
	}
	providersUsed := []string{provider}
	e.stageLog(StageGenerated, req.OwnerID).Debug(fmt.Sprintf("补全完成: provider=%s", provider))

	validation, vErr := e.validator.Validate(content, bundle)
	if vErr != nil {
		degradedReasons = append(degradedReasons, string(models.ErrKindValidationInconclusive))
	} else if validation.Confidence < e.validator.Threshold() || len(validation.Contradictions) > 0 {
		// 置信度不足或存在矛盾时重新生成一次，第二次结果无论好坏都交付。
		e.stageLog(StageValidated, req.OwnerID).Warn(fmt.Sprintf("校验置信度 %.2f (矛盾 %d 处)，触发重新生成", validation.Confidence, len(validation.Contradictions)))
		regenContent, regenProvider, regenErr := e.complete(ctx, buildPrompt(bundle, &decision, text, true), regenTemperature)
		if regenErr == nil {
			content = regenContent
			if regenProvider != provider {
				providersUsed = append(providersUsed, regenProvider)
			}
			if regenValidation, err := e.validator.Validate(content, bundle); err == nil {
				validation = regenValidation
			}
		}
		if validation.Confidence < e.validator.Threshold() {
			degradedReasons = append(degradedReasons, "low_validation_confidence")
		}
	}
	e.stageLog(StageValidated, req.OwnerID).Debug("校验完成")

	e.history.Append(req.ConversationID,
		models.ConversationTurn{Role: "user", Text: text, CreatedAt: time.Now()},
		models.ConversationTurn{Role: "assistant", Text: content, CreatedAt: time.Now()},
	)
	e.recordAsync(req, text, cls)

	var suggestions []string
	if req.Options.IncludeSuggestions {
		suggestions = buildSuggestions(cls.Intent, decision)
	}

	resp := &models.ChatResponse{
		Content: content,
		Metadata: models.ResponseMetadata{
			Classification:  cls,
			ProvidersUsed:   providersUsed,
			MemoryHitsFound: len(memOut.hits),
			Validation:      validation,
			WebSearch:       &decision,
			Suggestions:     suggestions,
			Degraded:        len(degradedReasons) > 0,
			DegradedReasons: degradedReasons,
		},
	}
	e.stageLog(StageDelivered, req.OwnerID).Info("响应已交付")
	return resp, nil
}

// lookupMemory 在有界超时内检索记忆。教学类请求也检索，以便把
// knowledge 标签的记录作为知识候选提供给优化器；请求显式关闭记忆
// 或意图不需要记忆时直接返回空结果。
func (e *Engine) lookupMemory(ctx context.Context, req models.ChatRequest, query string, cls models.ClassificationResult) memoryOutcome {
	if e.memory == nil || !req.Options.MemoryEnabled() {
		return memoryOutcome{}
	}
	if !cls.NeedsMemory && cls.Intent != models.IntentTeaching {
		return memoryOutcome{}
	}
	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	hits, err := e.memory.Search(lookupCtx, req.OwnerID, query, e.searchLimit, e.minSimilarity, models.SearchModeHybrid)
	return memoryOutcome{hits: hits, err: err}
}

func (e *Engine) complete(ctx context.Context, prompt string, temperature float32) (string, string, error) {
	return e.gateway.Complete(ctx, prompt, llm.CompletionParams{
		Temperature: temperature,
		MaxTokens:   defaultMaxOutputTokens,
	})
}

// recordAsync 在独立的后台上下文中回写本次交互，与请求生命周期解耦。
// 请求显式关闭记忆时不回写。
func (e *Engine) recordAsync(req models.ChatRequest, text string, cls models.ClassificationResult) {
	if e.recorder == nil || !req.Options.MemoryEnabled() {
		return
	}

	importance := 0.4
	if cls.Intent == models.IntentPersonal {
		importance = 0.8
	}
	event := consumer.InteractionEvent{
		OwnerID:    req.OwnerID,
		Text:       text,
		Importance: importance,
	}
	if req.ConversationID != "" {
		event.Tags = []string{"conversation:" + req.ConversationID}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writebackTimeout)
		defer cancel()
		if err := e.recorder.Record(ctx, event); err != nil && e.log != nil {
			e.log.Warn(fmt.Sprintf("记忆回写失败, owner=%s: %v", req.OwnerID, err))
		}
	}()
}

// levelForIntent 把意图映射到上下文压缩级别：个人类请求需要完整的
// 记忆视野，教学类受益于知识选材，时效类只需要近期会话，其余从简。
func levelForIntent(intent models.Intent) models.ContextLevel {
	switch intent {
	case models.IntentPersonal:
		return models.ContextFull
	case models.IntentTeaching:
		return models.ContextSelective
	case models.IntentTimeSensitive:
		return models.ContextRecent
	default:
		return models.ContextLight
	}
}

func (e *Engine) stageLog(stage Stage, ownerID string) *logger.Logger {
	if e.log == nil {
		return logger.New("orchestrator", "", ownerID)
	}
	return e.log.WithStage(string(stage))
}
