package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 把大量文本切分为模型接受的批次，并行提交并按原顺序合并结果
type BatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理一组文本，返回与输入等长且顺序一致的向量
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, newError(p.client.Name(), CodeEmptyInput, fmt.Sprintf("text %d is empty", i))
		}
	}

	batches := splitIntoBatches(texts, p.batchSize)
	if len(batches) == 1 {
		return p.embed(ctx, batches[0])
	}

	wp := workerpool.New(p.maxWorkers)
	results := make([][][]float32, len(batches))
	var processingErr error
	var errOnce sync.Once

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if ctx.Err() != nil {
				errOnce.Do(func() { processingErr = ctx.Err() })
				return
			}

			vectors, err := p.embed(ctx, batch)
			if err != nil {
				errOnce.Do(func() { processingErr = fmt.Errorf("batch %d processing error: %w", i, err) })
				return
			}
			results[i] = vectors
		})
	}
	wp.StopWait()

	if processingErr != nil {
		return nil, processingErr
	}

	all := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		all = append(all, vectors...)
	}
	return all, nil
}

func (p *BatchProcessor) embed(ctx context.Context, batch []string) ([][]float32, error) {
	vectors, err := p.client.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, newError(p.client.Name(), CodeBadResponse,
			fmt.Sprintf("expected %d vectors, got %d", len(batch), len(vectors)))
	}
	return vectors, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}

// BatchedClient 在任意客户端之上提供不受批次上限约束的EmbedBatch
type BatchedClient struct {
	Client
	processor *BatchProcessor
}

// NewBatchedClient 创建分批嵌入客户端
func NewBatchedClient(client Client, batchSize, maxWorkers int) *BatchedClient {
	return &BatchedClient{
		Client:    client,
		processor: NewBatchProcessor(client, batchSize, maxWorkers),
	}
}

// EmbedBatch 分批并行生成向量
func (c *BatchedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.processor.Process(ctx, texts)
}
