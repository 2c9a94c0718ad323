package ranking

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/sirupsen/logrus"
)

// Embedder 排序所需的嵌入能力
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SemanticRanker 按查询与章节正文的语义相似度排序
type SemanticRanker struct {
	embedder Embedder
	logger   *logrus.Logger
}

// NewSemanticRanker 创建语义排序器
func NewSemanticRanker(embedder Embedder, logger *logrus.Logger) *SemanticRanker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SemanticRanker{embedder: embedder, logger: logger}
}

// Rank 为每个章节计算相似度并按降序稳定排序
// 输出与输入等长，输入为空时不调用模型
func (r *SemanticRanker) Rank(ctx context.Context, query string, sections []models.Section) ([]models.Section, error) {
	if len(sections) == 0 {
		return []models.Section{}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	contents := make([]string, len(sections))
	for i, s := range sections {
		contents[i] = s.Content
	}
	vectors, err := r.embedder.EmbedBatch(ctx, contents)
	if err != nil {
		return nil, fmt.Errorf("failed to embed sections: %w", err)
	}
	if len(vectors) != len(sections) {
		return nil, fmt.Errorf("expected %d section embeddings, got %d", len(sections), len(vectors))
	}

	ranked := make([]models.Section, len(sections))
	for i, s := range sections {
		score, err := CosineSimilarity(queryVec, vectors[i])
		if err != nil {
			return nil, fmt.Errorf("section %d on page %d: %w", i, s.PageNumber, err)
		}
		ranked[i] = s.WithSimilarity(score)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].SimilarityScore > *ranked[j].SimilarityScore
	})

	r.logger.WithFields(logrus.Fields{
		"document": sections[0].Document,
		"sections": len(ranked),
	}).Debug("Ranked sections by semantic similarity")
	return ranked, nil
}
