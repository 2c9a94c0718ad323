package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultDashScopeEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	defaultTongyiModel       = "text-embedding-v3"
)

type dashScopeRequest struct {
	Model      string               `json:"model"`
	Input      dashScopeInput       `json:"input"`
	Parameters *dashScopeParameters `json:"parameters,omitempty"`
}

type dashScopeInput struct {
	Texts []string `json:"texts"`
}

// dashScopeParameters 仅v3模型接受
type dashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`
	OutputType string `json:"output_type,omitempty"`
}

type dashScopeResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Output    struct {
		Embeddings []dashScopeEmbedding `json:"embeddings"`
	} `json:"output"`
}

type dashScopeEmbedding struct {
	Embedding []float32 `json:"embedding"`
	TextIndex int       `json:"text_index"`
}

// TongyiClient 通义千问（DashScope）嵌入客户端
type TongyiClient struct {
	apiKey     string
	endpoint   string
	model      string
	dimensions int
	maxRetries int
	http       *http.Client
}

// NewTongyiClient 创建通义千问嵌入客户端
func NewTongyiClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, newError("tongyi", CodeUnauthorized, "API key is required")
	}

	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultDashScopeEndpoint
	}
	model := cfg.Model
	if model == "" || model == DefaultModel {
		model = defaultTongyiModel
	}

	switch cfg.Dimensions {
	case 0, 64, 128, 256, 512, 768, 1024:
	default:
		return nil, newError("tongyi", CodeBadRequest, fmt.Sprintf("unsupported dimension: %d", cfg.Dimensions))
	}

	return &TongyiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		model:      model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, newError("tongyi", CodeEmptyInput, "input text cannot be empty")
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成向量
// v3模型每批最多10条，其余模型25条，超限交给BatchedClient切分
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	v3 := c.model == defaultTongyiModel
	limit := 25
	if v3 {
		limit = 10
	}
	if len(texts) > limit {
		return nil, newError("tongyi", CodeBadRequest,
			fmt.Sprintf("%s accepts at most %d texts per request", c.model, limit))
	}

	req := dashScopeRequest{Model: c.model, Input: dashScopeInput{Texts: texts}}
	if v3 {
		req.Parameters = &dashScopeParameters{OutputType: "dense", Dimension: c.dimensions}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, wrapError("tongyi", CodeBadRequest, err)
	}

	body, err := c.send(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp dashScopeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wrapError("tongyi", CodeBadResponse, err)
	}
	if resp.Code != "" {
		return nil, newError("tongyi", CodeBadRequest, fmt.Sprintf("%s (%s)", resp.Message, resp.Code))
	}

	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex >= 0 && emb.TextIndex < len(texts) {
			result[emb.TextIndex] = emb.Embedding
		}
	}
	for i, vec := range result {
		if vec == nil {
			return nil, newError("tongyi", CodeBadResponse, fmt.Sprintf("missing embedding for text %d", i))
		}
	}
	return result, nil
}

// send 发送请求，网络错误与5xx按指数退避重试
func (c *TongyiClient) send(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapError("tongyi", CodeTimeout, ctx.Err())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, wrapError("tongyi", CodeBadRequest, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = wrapError("tongyi", CodeUnavailable, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = wrapError("tongyi", CodeUnavailable, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}
		lastErr = statusError(resp.StatusCode, body)
		if resp.StatusCode < 500 {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func statusError(status int, body []byte) error {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	message := fmt.Sprintf("status %d: %s", status, string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
		message = fmt.Sprintf("%s (%s)", apiErr.Message, apiErr.Code)
	}
	return newError("tongyi", codeForStatus(status), message)
}

func init() {
	Register("tongyi", NewTongyiClient)
}
