package embedding

import (
	"Minerva/internal/config"
	"fmt"
)

// NewModel 根据提供商配置创建并返回一个新的 Embedding 模型实例。
//
// 参数:
//
//	cfg: 提供商配置，Vendor 决定厂商类型 ("gemini", "openai", "ollama")。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewModel(cfg config.ProviderConfig) (Embedding, error) {
	switch cfg.Vendor {
	case "gemini":
		return NewGoogleModel(cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIModel(cfg.APIKey, cfg.Model)
	case "ollama":
		return NewOllamaModel(cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported embedding vendor: %s", cfg.Vendor)
	}
}
