package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIClient OpenAI兼容接口的嵌入客户端
// BaseURL可以指向任何兼容服务（如本地vLLM或Ollama）
type OpenAIClient struct {
	api        *openai.Client
	model      string
	dimensions int
	maxRetries int
	timeout    time.Duration
}

// NewOpenAIClient 创建OpenAI嵌入客户端
func NewOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, newError("openai", CodeUnauthorized, "API key is required")
	}

	model := cfg.Model
	if model == "" || model == DefaultModel {
		model = defaultOpenAIModel
	}

	apiConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		api:        openai.NewClientWithConfig(apiConfig),
		model:      model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, newError("openai", CodeEmptyInput, "input text cannot be empty")
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量，按响应中的index还原顺序
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapError("openai", CodeTimeout, ctx.Err())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		resp, err = c.create(ctx, req)
		if err == nil || !retryable(err) {
			break
		}
	}
	if err != nil {
		return nil, convertOpenAIError(err)
	}

	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(result) {
			result[item.Index] = item.Embedding
		}
	}
	for i, vec := range result {
		if vec == nil {
			return nil, newError("openai", CodeBadResponse, fmt.Sprintf("missing embedding for text %d", i))
		}
	}
	return result, nil
}

func (c *OpenAIClient) create(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.api.CreateEmbeddings(ctx, req)
}

// retryable 限流与5xx可重试，调用方取消不重试
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}

func convertOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider: "openai",
			Code:     codeForStatus(apiErr.HTTPStatusCode),
			Message:  apiErr.Message,
			Err:      err,
		}
	}
	return wrapError("openai", CodeUnavailable, err)
}

func init() {
	Register("openai", NewOpenAIClient)
}
