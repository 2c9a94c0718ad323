package pyprovider

import (
	"context"
	"fmt"
)

// GenerateRequest 文本生成请求
// 长度以token计，束搜索参数直接交给服务端的seq2seq模型
type GenerateRequest struct {
	Prompt        string  `json:"prompt"`
	Model         string  `json:"model,omitempty"`
	MinLength     int     `json:"min_length,omitempty"`
	MaxLength     int     `json:"max_length,omitempty"`
	NumBeams      int     `json:"num_beams,omitempty"`
	LengthPenalty float64 `json:"length_penalty,omitempty"`
	EarlyStopping bool    `json:"early_stopping,omitempty"`
}

// GenerateResponse 文本生成响应
type GenerateResponse struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	TotalTokens  int    `json:"total_tokens"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Generate 调用服务端生成文本，多束搜索时开启early stopping
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("empty prompt provided for generation")
	}
	req.EarlyStopping = req.NumBeams > 1

	var resp GenerateResponse
	if err := s.post(ctx, "/python/llm/generate", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to generate text: %w", err)
	}
	return &resp, nil
}
