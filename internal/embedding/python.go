package embedding

import (
	"context"
	"errors"

	"github.com/fyerfyer/persona-doc-analyzer/internal/pyprovider"
)

// PythonClient 通过Python模型服务调用sentence-transformers
type PythonClient struct {
	service   *pyprovider.Service
	model     string
	normalize bool
}

// NewPythonClient 按配置连接Python模型服务
func NewPythonClient(cfg Config) (Client, error) {
	pyConfig := pyprovider.DefaultConfig()
	if cfg.BaseURL != "" {
		pyConfig.BaseURL = cfg.BaseURL
	}
	pyConfig.Timeout = cfg.Timeout
	pyConfig.MaxRetries = cfg.MaxRetries

	service, err := pyprovider.NewService(pyConfig)
	if err != nil {
		return nil, wrapError("python", CodeBadRequest, err)
	}
	return NewPythonClientWith(service, cfg.Model, cfg.Normalize), nil
}

// NewPythonClientWith 基于已有的服务客户端创建嵌入客户端
func NewPythonClientWith(service *pyprovider.Service, model string, normalize bool) *PythonClient {
	if model == "" {
		model = DefaultModel
	}
	return &PythonClient{service: service, model: model, normalize: normalize}
}

// Name 返回模型名称
func (c *PythonClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量
func (c *PythonClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, newError("python", CodeEmptyInput, "input text cannot be empty")
	}
	vec, err := c.service.Embed(ctx, c.model, text)
	if err != nil {
		return nil, c.convert(err)
	}
	return vec, nil
}

// EmbedBatch 一次请求生成多条文本的向量
func (c *PythonClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := c.service.EmbedBatch(ctx, c.model, texts, c.normalize)
	if err != nil {
		return nil, c.convert(err)
	}
	return vectors, nil
}

func (c *PythonClient) convert(err error) error {
	var se *pyprovider.StatusError
	if errors.As(err, &se) {
		return wrapError("python", codeForStatus(se.StatusCode), err)
	}
	return wrapError("python", CodeUnavailable, err)
}

func init() {
	Register("python", NewPythonClient)
}
