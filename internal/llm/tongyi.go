package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTongyiEndpoint = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

type tongyiRequest struct {
	Model      string           `json:"model"`
	Input      tongyiInput      `json:"input"`
	Parameters tongyiParameters `json:"parameters"`
}

type tongyiInput struct {
	Prompt string `json:"prompt"`
}

type tongyiParameters struct {
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float32 `json:"temperature,omitempty"`
	ResultFormat string  `json:"result_format"`
}

type tongyiResponse struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	Output    struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"output"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// TongyiGenerator 通义千问文本生成
// 该接口没有束搜索，MaxLength映射为max_tokens，MinLength被忽略
type TongyiGenerator struct {
	apiKey      string
	endpoint    string
	model       string
	maxRetries  int
	maxTokens   int
	temperature float32
	http        *http.Client
}

// NewTongyiGenerator 创建通义千问生成器
func NewTongyiGenerator(cfg Config) (Generator, error) {
	if cfg.APIKey == "" {
		return nil, newError("tongyi", CodeUnauthorized, "API key is required")
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = defaultTongyiEndpoint
	}
	model := cfg.Model
	if model == "" || model == ModelT5Small {
		model = ModelQwenTurbo
	}

	return &TongyiGenerator{
		apiKey:      cfg.APIKey,
		endpoint:    endpoint,
		model:       model,
		maxRetries:  cfg.MaxRetries,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		http:        &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Model 返回模型名称
func (g *TongyiGenerator) Model() string {
	return g.model
}

// Generate 生成文本
func (g *TongyiGenerator) Generate(ctx context.Context, prompt string, params GenerationParams) (*Generation, error) {
	if prompt == "" {
		return nil, newError("tongyi", CodeEmptyPrompt, "prompt cannot be empty")
	}

	maxTokens := params.MaxLength
	if maxTokens == 0 {
		maxTokens = g.maxTokens
	}
	payload, err := json.Marshal(tongyiRequest{
		Model: g.model,
		Input: tongyiInput{Prompt: prompt},
		Parameters: tongyiParameters{
			MaxTokens:    maxTokens,
			Temperature:  g.temperature,
			ResultFormat: "text",
		},
	})
	if err != nil {
		return nil, wrapError("tongyi", CodeBadRequest, err)
	}

	body, err := g.send(ctx, payload)
	if err != nil {
		return nil, err
	}

	var resp tongyiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, wrapError("tongyi", CodeUnavailable, fmt.Errorf("failed to parse response: %w", err))
	}
	if resp.Code != "" {
		return nil, newError("tongyi", CodeBadRequest, fmt.Sprintf("%s (%s)", resp.Message, resp.Code))
	}
	if resp.Output.Text == "" {
		return nil, newError("tongyi", CodeEmptyOutput, "model returned no text")
	}
	return &Generation{Text: resp.Output.Text, Model: g.model, Tokens: resp.Usage.TotalTokens}, nil
}

// send 发送请求，网络错误与5xx按指数退避重试
func (g *TongyiGenerator) send(ctx context.Context, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, wrapError("tongyi", CodeUnavailable, ctx.Err())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, wrapError("tongyi", CodeBadRequest, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+g.apiKey)

		resp, err := g.http.Do(req)
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
		lastErr = g.statusError(resp.StatusCode, body)
		if resp.StatusCode < 500 {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (g *TongyiGenerator) statusError(status int, body []byte) error {
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
	Register("tongyi", NewTongyiGenerator)
}
