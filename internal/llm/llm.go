package llm

import (
	"Minerva/internal/config"
	"context"
	"fmt"
)

// CompletionParams 是一次补全调用的生成参数。
type CompletionParams struct {
	Temperature float32 // 采样温度。
	MaxTokens   int     // 生成上限，0 表示使用厂商默认值。
}

// LLM 定义了所有补全模型客户端必须实现的通用接口。
type LLM interface {
	// Generate 根据给定提示词生成一段文本。
	//
	// 参数:
	//   ctx: 上下文，用于控制请求的生命周期。
	//   prompt: 完整的提示词文本。
	//   params: 生成参数。
	//
	// 返回值:
	//   string: 生成的文本。
	//   error: 如果生成失败，则返回错误。
	Generate(ctx context.Context, prompt string, params CompletionParams) (string, error)
}

// NewClient 是一个工厂函数，根据提供商配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.ProviderConfig) (LLM, error) {
	switch cfg.Vendor {
	case "gemini":
		return NewGemini(context.Background(), cfg.Model, cfg.APIKey)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM vendor: %s", cfg.Vendor)
	}
}
