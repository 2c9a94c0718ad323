package embedding

import (
	"context"

	"github.com/fyerfyer/persona-doc-analyzer/internal/cache"
	"github.com/sirupsen/logrus"
)

// CachedClient 带向量缓存的嵌入客户端
// 缓存读写失败只记录日志，不影响嵌入结果
type CachedClient struct {
	client Client
	cache  cache.VectorCache
	logger *logrus.Logger
}

// NewCachedClient 创建带缓存的嵌入客户端
func NewCachedClient(client Client, vc cache.VectorCache, logger *logrus.Logger) *CachedClient {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CachedClient{client: client, cache: vc, logger: logger}
}

// Name 返回底层模型名称
func (c *CachedClient) Name() string {
	return c.client.Name()
}

// Embed 生成单条文本的向量表示，命中缓存时不调用模型
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(ctx, text); ok {
		return vec, nil
	}

	vec, err := c.client.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(ctx, text, vec)
	return vec, nil
}

// EmbedBatch 只对未命中缓存的文本调用模型，结果顺序与输入一致
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.lookup(ctx, text); ok {
			result[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	c.logger.WithFields(logrus.Fields{
		"model":  c.client.Name(),
		"hits":   len(texts) - len(missing),
		"misses": len(missing),
	}).Debug("Embedding cache lookup")

	if len(missing) == 0 {
		return result, nil
	}

	vectors, err := c.client.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missing) {
		return nil, newError(c.client.Name(), CodeBadResponse, "embedding count does not match input")
	}

	for j, vec := range vectors {
		result[missingIdx[j]] = vec
		c.store(ctx, missing[j], vec)
	}
	return result, nil
}

func (c *CachedClient) lookup(ctx context.Context, text string) ([]float32, bool) {
	vec, found, err := c.cache.Lookup(ctx, cache.KeyFor(c.client.Name(), text))
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read embedding cache")
		return nil, false
	}
	return vec, found
}

func (c *CachedClient) store(ctx context.Context, text string, vec []float32) {
	if err := c.cache.Store(ctx, cache.KeyFor(c.client.Name(), text), vec); err != nil {
		c.logger.WithError(err).Warn("Failed to write embedding cache")
	}
}
