package embedding

import (
	"context"
	"time"
)

// Client 嵌入模型客户端
// 同一次运行中相同文本必须得到相同向量
type Client interface {
	// Embed 生成单条文本的向量
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 批量生成向量，返回顺序与输入一致
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name 返回模型名称，也用作缓存键的一部分
	Name() string
}

// DefaultModel python提供方默认加载的sentence-transformers模型
const DefaultModel = "all-MiniLM-L12-v2"

// Config 嵌入模型配置
type Config struct {
	Provider   string        // 提供方：python, tongyi, openai
	APIKey     string        // API密钥
	BaseURL    string        // 服务地址
	Model      string        // 模型名称，空值由提供方决定
	Timeout    time.Duration // 请求超时
	MaxRetries int           // 最大重试次数
	Dimensions int           // 向量维度，0表示模型默认
	Normalize  bool          // 是否要求服务端归一化
}

// Constructor 嵌入客户端构造函数
type Constructor func(cfg Config) (Client, error)

var providers = make(map[string]Constructor)

// Register 注册嵌入模型提供方
func Register(provider string, ctor Constructor) {
	providers[provider] = ctor
}

// New 按配置创建嵌入客户端
func New(cfg Config) (Client, error) {
	ctor, ok := providers[cfg.Provider]
	if !ok {
		return nil, newError(cfg.Provider, CodeUnknownProvider, "embedding provider not registered")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return ctor(cfg)
}
