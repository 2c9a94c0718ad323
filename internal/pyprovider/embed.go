package pyprovider

import (
	"context"
	"fmt"
	"net/url"
)

type embedRequest struct {
	Text string `json:"text"`
}

type embedBatchRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Success   bool      `json:"success"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Embedding []float32 `json:"embedding"`
}

type embedBatchResponse struct {
	Success    bool        `json:"success"`
	Model      string      `json:"model"`
	Count      int         `json:"count"`
	Embeddings [][]float32 `json:"embeddings"`
}

func embedQuery(model string, normalize bool) url.Values {
	q := url.Values{}
	if model != "" {
		q.Set("model", model)
	}
	if normalize {
		q.Set("normalize", "true")
	}
	return q
}

// Embed 计算单条文本的句向量
func (s *Service) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text provided for embedding")
	}

	var resp embedResponse
	if err := s.post(ctx, "/python/embeddings", embedQuery(model, false), embedRequest{Text: text}, &resp); err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("model service reported embedding failure")
	}
	return resp.Embedding, nil
}

// EmbedBatch 一次请求计算多条文本的句向量，结果顺序与输入一致
func (s *Service) EmbedBatch(ctx context.Context, model string, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty text list provided for batch embedding")
	}

	var resp embedBatchResponse
	err := s.post(ctx, "/python/embeddings/batch", embedQuery(model, normalize), embedBatchRequest{Texts: texts}, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("model service reported batch embedding failure")
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}
	return resp.Embeddings, nil
}
