package gateway

import (
	"Minerva/internal/config"
	"Minerva/internal/embedding"
	"Minerva/internal/llm"
	"Minerva/internal/models"
	"Minerva/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FallbackProviderName 是确定性回退嵌入在响应元数据中的提供商名。
// 上游据此判断嵌入结果来自降级路径。
const FallbackProviderName = "hash-fallback"

const defaultCallTimeout = 15 * time.Second

// EmbeddingCandidate 是网关中一个有序的嵌入候选。
type EmbeddingCandidate struct {
	Name    string
	Dim     int // 声明的向量维度，供记忆存储拒绝跨维度比较。
	Timeout time.Duration
	Model   embedding.Embedding
}

// CompletionCandidate 是网关中一个有序的补全候选。
type CompletionCandidate struct {
	Name    string
	Timeout time.Duration
	Model   llm.LLM
}

// Gateway 是所有外部嵌入/补全提供商之上的统一入口。它维护每种能力的
// 有序候选列表与共享健康表；降级循环严格串行（一次只尝试一个候选），
// 避免放大对故障厂商的压力。
type Gateway struct {
	embedders  []EmbeddingCandidate
	completers []CompletionCandidate
	health     *HealthTable
	fallback   *embedding.FallbackModel
	log        *logger.Logger

	now func() time.Time // 测试中可替换。
}

// New 根据网关配置构建提供商客户端并返回网关实例。
func New(cfg config.GatewayConfig, log *logger.Logger) (*Gateway, error) {
	var embedders []EmbeddingCandidate
	for _, pc := range cfg.Embedding {
		model, err := embedding.NewModel(pc)
		if err != nil {
			return nil, fmt.Errorf("初始化嵌入提供商 '%s' 失败: %w", pc.Name, err)
		}
		embedders = append(embedders, EmbeddingCandidate{
			Name:    pc.Name,
			Dim:     pc.Dim,
			Timeout: pc.TimeoutDuration(defaultCallTimeout),
			Model:   model,
		})
	}

	var completers []CompletionCandidate
	for _, pc := range cfg.Completion {
		client, err := llm.NewClient(pc)
		if err != nil {
			return nil, fmt.Errorf("初始化补全提供商 '%s' 失败: %w", pc.Name, err)
		}
		completers = append(completers, CompletionCandidate{
			Name:    pc.Name,
			Timeout: pc.TimeoutDuration(defaultCallTimeout),
			Model:   client,
		})
	}

	seed := config.Duration(cfg.CooldownSeed, 30*time.Second)
	maxCooldown := config.Duration(cfg.CooldownCap, 10*time.Minute)
	return NewWithCandidates(embedders, completers, cfg.FallbackDim, seed, maxCooldown, log), nil
}

// NewWithCandidates 用已构建的候选列表创建网关。测试和需要注入
// 自定义客户端的调用方使用这个构造器。
func NewWithCandidates(embedders []EmbeddingCandidate, completers []CompletionCandidate, fallbackDim int, seed, maxCooldown time.Duration, log *logger.Logger) *Gateway {
	return &Gateway{
		embedders:  embedders,
		completers: completers,
		health:     NewHealthTable(seed, maxCooldown),
		fallback:   embedding.NewFallbackModel(fallbackDim),
		log:        log,
		now:        time.Now,
	}
}

// FallbackDim 返回回退嵌入的维度。
func (g *Gateway) FallbackDim() int { return g.fallback.Dim() }

// Embed 依次尝试熔断未打开的嵌入候选。全部耗尽时返回确定性的回退向量
// 而不是失败：厂商全面故障期间向量索引仍持续写入，只是检索质量下降。
// 第二个返回值是实际使用的提供商名。
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, string, error) {
	for _, cand := range g.embedders {
		if !g.health.Available(cand.Name, g.now()) {
			continue
		}

		vec, err := g.callEmbed(ctx, cand, text)
		if err == nil {
			g.health.RecordSuccess(cand.Name, g.now())
			return vec, cand.Name, nil
		}
		if ctx.Err() != nil {
			// 调用方取消，放弃整个请求，不惩罚提供商。
			return nil, "", ctx.Err()
		}
		g.recordFailure("embedding", cand.Name, err)
	}

	vec, _ := g.fallback.Embed(ctx, text)
	return vec, FallbackProviderName, nil
}

// Complete 依次尝试熔断未打开的补全候选。全部耗尽时返回
// ProviderExhausted —— 这是整条流水线上唯一允许硬失败的路径。
// 第二个返回值是实际使用的提供商名。
func (g *Gateway) Complete(ctx context.Context, prompt string, params llm.CompletionParams) (string, string, error) {
	for _, cand := range g.completers {
		if !g.health.Available(cand.Name, g.now()) {
			continue
		}

		text, err := g.callComplete(ctx, cand, prompt, params)
		if err == nil {
			g.health.RecordSuccess(cand.Name, g.now())
			return text, cand.Name, nil
		}
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		g.recordFailure("completion", cand.Name, err)
	}

	return "", "", models.NewPipelineError(models.ErrKindProviderExhausted,
		"all completion providers failed", nil)
}

// ResetStale 恢复冷却期已度过的提供商。由后台清扫任务调用。
func (g *Gateway) ResetStale() {
	g.health.ResetStale(g.now())
}

// Health 返回全部提供商的健康快照。
func (g *Gateway) Health() map[string]HealthSnapshot {
	return g.health.Snapshot()
}

func (g *Gateway) callEmbed(ctx context.Context, cand EmbeddingCandidate, text string) ([]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, cand.Timeout)
	defer cancel()
	return cand.Model.Embed(cctx, text)
}

func (g *Gateway) callComplete(ctx context.Context, cand CompletionCandidate, prompt string, params llm.CompletionParams) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, cand.Timeout)
	defer cancel()
	return cand.Model.Generate(cctx, prompt, params)
}

func (g *Gateway) recordFailure(capability, name string, err error) {
	g.health.RecordFailure(name, g.now())
	if g.log != nil {
		g.log.WithPayload(map[string]interface{}{
			"capability": capability,
			"provider":   name,
			"kind":       classifyProviderError(err),
		}).Warn(fmt.Sprintf("provider call failed, advancing to next candidate: %v", err))
	}
}

// classifyProviderError 把厂商错误归入超时/限流/其他三类。
// 这些分类只用于日志与健康统计，降级循环会就地恢复它们，从不上抛。
func classifyProviderError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return string(models.ErrKindProviderTimeout)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
		return string(models.ErrKindProviderRateLimited)
	}
	return "provider_error"
}
