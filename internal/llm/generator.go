package llm

import (
	"context"
	"time"
)

// Generator 文本生成模型
// 精炼与摘要只需要单轮的提示词到文本
type Generator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (*Generation, error)
	Model() string
}

// GenerationParams 生成参数，长度以token计
// 束搜索与长度惩罚只对seq2seq模型生效，零值表示交给模型默认
type GenerationParams struct {
	MinLength     int
	MaxLength     int
	NumBeams      int
	LengthPenalty float64
}

// Generation 一次生成的结果
type Generation struct {
	Text   string
	Model  string
	Tokens int
}

// 常用模型名称
const (
	ModelT5Small   = "t5-small"   // Python服务中的seq2seq模型
	ModelQwenTurbo = "qwen-turbo" // 通义千问-Turbo
)

// Config 生成模型配置
type Config struct {
	Provider    string        // 提供方：python, tongyi
	APIKey      string        // API密钥
	BaseURL     string        // 服务地址
	Model       string        // 模型名称
	Timeout     time.Duration // 请求超时
	MaxRetries  int           // 最大重试次数
	MaxTokens   int           // 未指定MaxLength时的生成上限
	Temperature float32       // 采样温度
}

// Constructor 生成模型构造函数
type Constructor func(cfg Config) (Generator, error)

var providers = make(map[string]Constructor)

// Register 注册生成模型提供方
func Register(provider string, ctor Constructor) {
	providers[provider] = ctor
}

// New 按配置创建生成模型
func New(cfg Config) (Generator, error) {
	ctor, ok := providers[cfg.Provider]
	if !ok {
		return nil, newError(cfg.Provider, CodeUnknownProvider, "generation provider not registered")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return ctor(cfg)
}
