package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fyerfyer/persona-doc-analyzer/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient 记录调用次数的测试客户端，向量第一维为文本长度
type mockClient struct {
	mu       sync.Mutex
	calls    int
	texts    []string
	maxBatch int
	err      error
}

func (m *mockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockClient) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.texts = append(m.texts, texts...)
	if m.err != nil {
		return nil, m.err
	}
	if m.maxBatch > 0 && len(texts) > m.maxBatch {
		return nil, errors.New("batch too large")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (m *mockClient) Name() string { return "mock" }

func TestNewProviders(t *testing.T) {
	_, err := New(Config{Provider: "does-not-exist"})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeUnknownProvider))

	_, err = New(Config{Provider: "tongyi"})
	assert.True(t, IsCode(err, CodeUnauthorized))

	_, err = New(Config{Provider: "openai"})
	assert.True(t, IsCode(err, CodeUnauthorized))

	client, err := New(Config{Provider: "python", BaseURL: "http://127.0.0.1:1/api"})
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, client.Name())

	_, err = client.Embed(context.Background(), "")
	assert.True(t, IsCode(err, CodeEmptyInput))
}

func TestSplitIntoBatches(t *testing.T) {
	batches := splitIntoBatches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)
	assert.Len(t, splitIntoBatches([]string{"a"}, 0), 1)
}

func TestBatchProcessorPreservesOrder(t *testing.T) {
	mock := &mockClient{maxBatch: 3}
	processor := NewBatchProcessor(mock, 3, 4)

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff", "ggggggg"}
	vectors, err := processor.Process(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, vec := range vectors {
		assert.Equal(t, float32(len(texts[i])), vec[0])
	}
	assert.Equal(t, 3, mock.calls)
}

func TestBatchProcessorErrors(t *testing.T) {
	_, err := NewBatchProcessor(&mockClient{}, 2, 2).Process(context.Background(), []string{"a", ""})
	assert.True(t, IsCode(err, CodeEmptyInput))

	failing := &mockClient{err: errors.New("model offline")}
	_, err = NewBatchProcessor(failing, 1, 2).Process(context.Background(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")

	vectors, err := NewBatchProcessor(&mockClient{}, 2, 2).Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestBatchedClient(t *testing.T) {
	mock := &mockClient{maxBatch: 2}
	client := NewBatchedClient(mock, 2, 2)

	vectors, err := client.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	assert.Equal(t, "mock", client.Name())
}

func TestCachedClientMemory(t *testing.T) {
	c, err := cache.NewMemoryCache(cache.DefaultConfig())
	require.NoError(t, err)

	mock := &mockClient{}
	client := NewCachedClient(mock, c, nil)
	ctx := context.Background()

	first, err := client.EmbedBatch(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 1, mock.calls)

	second, err := client.EmbedBatch(ctx, []string{"beta", "gamma", "alpha"})
	require.NoError(t, err)
	assert.Equal(t, 2, mock.calls)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, mock.texts)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	vec, err := client.Embed(ctx, "gamma")
	require.NoError(t, err)
	assert.Equal(t, second[1], vec)
	assert.Equal(t, 2, mock.calls)
}

func TestCachedClientRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(cache.Config{RedisAddr: mr.Addr(), Namespace: "analyzer"})
	require.NoError(t, err)
	defer c.Close()

	mock := &mockClient{}
	client := NewCachedClient(mock, c, nil)

	_, err = client.Embed(context.Background(), "shared text")
	require.NoError(t, err)
	assert.Len(t, mr.Keys(), 1)

	// 另一个进程使用同一个Redis时直接命中
	other := &mockClient{}
	_, err = NewCachedClient(other, c, nil).Embed(context.Background(), "shared text")
	require.NoError(t, err)
	assert.Equal(t, 0, other.calls)
}

func TestCachedClientIgnoresCorruptEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(cache.Config{RedisAddr: mr.Addr(), Namespace: "analyzer"})
	require.NoError(t, err)
	defer c.Close()

	mock := &mockClient{}
	client := NewCachedClient(mock, c, nil)
	require.NoError(t, mr.Set("analyzer:"+cache.KeyFor("mock", "text").String(), "abcde"))

	vec, err := client.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 1}, vec)
	assert.Equal(t, 1, mock.calls)
}
