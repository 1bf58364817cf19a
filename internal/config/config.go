package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// ServerConfig 定义了 HTTP 服务的配置。
type ServerConfig struct {
	Address        string  `yaml:"address"`        // 监听地址 (例如: ":8080")
	RateLimitRPS   float64 `yaml:"rateLimitRPS"`   // 单客户端每秒请求数上限，0 表示不限流
	RateLimitBurst int     `yaml:"rateLimitBurst"` // 令牌桶容量（允许的突发量）
}

// ProviderConfig 定义了单个外部提供商（嵌入或补全）的配置。
// 列表顺序即为降级顺序：第一个是主提供商，后续依次为备选。
type ProviderConfig struct {
	Name    string `yaml:"name"`              // 提供商标识，用于健康表和响应元数据
	Vendor  string `yaml:"vendor"`            // 厂商类型: "gemini", "openai", "ollama"
	Model   string `yaml:"model"`             // 模型名称
	APIKey  string `yaml:"apiKey,omitempty"`  // API 密钥
	BaseURL string `yaml:"baseURL,omitempty"` // 服务基础 URL (某些厂商不需要)
	Timeout string `yaml:"timeout"`           // 单次调用超时 (例如: "15s")
	Dim     int    `yaml:"dim,omitempty"`     // 声明的向量维度 (仅嵌入提供商)
}

// TimeoutDuration 解析提供商声明的超时时间，解析失败时返回给定的默认值。
func (p ProviderConfig) TimeoutDuration(def time.Duration) time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GatewayConfig 定义了提供商网关的熔断与降级配置。
type GatewayConfig struct {
	Embedding    []ProviderConfig `yaml:"embedding"`    // 嵌入提供商，按优先级排序
	Completion   []ProviderConfig `yaml:"completion"`   // 补全提供商，按优先级排序
	FallbackDim  int              `yaml:"fallbackDim"`  // 确定性回退嵌入的维度
	CooldownSeed string           `yaml:"cooldownSeed"` // 熔断冷却初值 (例如: "30s")
	CooldownCap  string           `yaml:"cooldownCap"`  // 熔断冷却上限 (例如: "10m")
}

// MemoryConfig 定义了记忆存储的检索与清扫配置。
type MemoryConfig struct {
	SearchLimit   int     `yaml:"searchLimit"`   // 默认返回条数
	MinSimilarity float64 `yaml:"minSimilarity"` // 默认相似度下限
	LookupTimeout string  `yaml:"lookupTimeout"` // 单次检索的有界超时 (例如: "2s")
	SweepInterval string  `yaml:"sweepInterval"` // 后台清扫周期 (例如: "1h")
	SweepGrace    string  `yaml:"sweepGrace"`    // 过期记录物理删除前的宽限期 (例如: "24h")
}

// ContextConfig 定义了上下文优化器的 token 预算。
type ContextConfig struct {
	Budgets     map[string]int `yaml:"budgets"`     // 各级别的 token 预算: light/recent/selective/full
	RecentTurns int            `yaml:"recentTurns"` // Recent 级别纳入的最近会话轮数
	TopKFacts   int            `yaml:"topKFacts"`   // Selective 级别纳入的知识条数
}

// ClassifierConfig 定义了分类与输入校验的配置。
type ClassifierConfig struct {
	MaxInputLength int `yaml:"maxInputLength"` // 超长输入直接拒绝，不做静默截断
}

// WebSearchConfig 定义了外部搜索决策引擎的缓存配置。
type WebSearchConfig struct {
	CacheTTL      string `yaml:"cacheTTL"`      // 决策缓存 TTL，分钟级 (例如: "5m")
	CacheCapacity int    `yaml:"cacheCapacity"` // 进程内缓存容量
}

// ValidatorConfig 定义了响应校验器的配置。
type ValidatorConfig struct {
	ConfidenceThreshold float64 `yaml:"confidenceThreshold"` // 低于该置信度触发一次重新生成
	MaxRegenerations    int     `yaml:"maxRegenerations"`    // 重新生成次数上限，固定为 1
}

// FieldConfig 定义了 Milvus 集合中字段的配置。
type FieldConfig struct {
	Name         string `yaml:"name"`                // 字段名称
	DataType     string `yaml:"dataType"`            // 字段数据类型 (例如: "Int64", "VarChar", "FloatVector")
	IsPrimaryKey bool   `yaml:"isPrimaryKey"`        // 是否为主键
	Dim          int    `yaml:"dim,omitempty"`       // 向量维度 (仅适用于向量类型)
	MaxLength    int    `yaml:"maxLength,omitempty"` // 最大长度 (仅适用于VarChar类型)
}

// IndexConfig 定义了 Milvus 集合中索引的配置。
type IndexConfig struct {
	FieldName  string                 `yaml:"fieldName"`  // 要创建索引的字段名称
	IndexType  string                 `yaml:"indexType"`  // 索引类型 (例如: "IVF_FLAT", "HNSW")
	MetricType string                 `yaml:"metricType"` // 相似度度量类型 (例如: "COSINE")
	Params     map[string]interface{} `yaml:"params"`     // 索引参数 (例如: {"nlist": 128})
}

// SchemaConfig 定义了 Milvus 集合的 Schema 配置。
type SchemaConfig struct {
	CollectionName string        `yaml:"collectionName"` // 集合名称
	Description    string        `yaml:"description"`    // 集合描述
	VectorField    string        `yaml:"vectorField"`    // 向量字段名称
	Fields         []FieldConfig `yaml:"fields"`         // 字段配置列表
	Index          IndexConfig   `yaml:"index"`          // 索引配置
}

// MilvusConfig 定义了 Milvus 数据库的连接和 Schema 配置。
// Address 为空时禁用 ANN 层，记忆存储静默退化为词法模式。
type MilvusConfig struct {
	Address string       `yaml:"address"` // Milvus 服务地址
	Schema  SchemaConfig `yaml:"schema"`  // Milvus 集合 Schema 配置
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MongoConfig 定义了 MongoDB 数据库的连接配置。
type MongoConfig struct {
	Address    string `yaml:"address"`    // MongoDB 服务器地址
	Username   string `yaml:"username"`   // 用户名
	Password   string `yaml:"password"`   // 密码
	Database   string `yaml:"database"`   // 数据库名称
	Collection string `yaml:"collection"` // 记忆集合名称
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
// Brokers 为空时记忆回写走进程内异步路径。
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // Kafka Broker 地址列表
	Topic   string   `yaml:"topic"`   // 记忆回写主题
	GroupID string   `yaml:"groupID"` // 消费组 ID
}

// DatabaseConfigs 包含所有外部存储的配置。
type DatabaseConfigs struct {
	Milvus MilvusConfig `yaml:"milvus"`  // Milvus 向量库配置
	Redis  RedisConfig  `yaml:"redis"`   // Redis 决策缓存配置
	Mongo  MongoConfig  `yaml:"mongodb"` // MongoDB 文档库配置
	Kafka  KafkaConfig  `yaml:"kafka"`   // Kafka 消息队列配置
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`        // 应用程序信息
	Logger     LoggerConfig     `yaml:"logger"`     // 日志记录器配置
	Server     ServerConfig     `yaml:"server"`     // HTTP 服务配置
	Gateway    GatewayConfig    `yaml:"gateway"`    // 提供商网关配置
	Memory     MemoryConfig     `yaml:"memory"`     // 记忆存储配置
	Context    ContextConfig    `yaml:"context"`    // 上下文优化器配置
	Classifier ClassifierConfig `yaml:"classifier"` // 分类器配置
	WebSearch  WebSearchConfig  `yaml:"webSearch"`  // 搜索决策配置
	Validator  ValidatorConfig  `yaml:"validator"`  // 响应校验器配置
	Databases  DatabaseConfigs  `yaml:"databases"`  // 外部存储配置
}

// Duration 是解析时长字段的辅助函数，解析失败时返回给定的默认值。
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig
	// 将 YAML 内容解析到 cfg 结构体中。
	if err := yaml.Unmarshal(yamlFile, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	return &cfg, nil
}
