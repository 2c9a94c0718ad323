package main

import (
	"context"
	"fmt"
	"time"

	appconfig "github.com/fyerfyer/persona-doc-analyzer/config"
	"github.com/fyerfyer/persona-doc-analyzer/internal/aggregate"
	"github.com/fyerfyer/persona-doc-analyzer/internal/cache"
	"github.com/fyerfyer/persona-doc-analyzer/internal/database"
	"github.com/fyerfyer/persona-doc-analyzer/internal/document"
	"github.com/fyerfyer/persona-doc-analyzer/internal/embedding"
	"github.com/fyerfyer/persona-doc-analyzer/internal/llm"
	"github.com/fyerfyer/persona-doc-analyzer/internal/ranking"
	"github.com/fyerfyer/persona-doc-analyzer/internal/repository"
	"github.com/fyerfyer/persona-doc-analyzer/internal/services"
	"github.com/fyerfyer/persona-doc-analyzer/pkg/storage"
	"github.com/sirupsen/logrus"
)

// buildAnalysisService 按配置组装分析服务，返回的cleanup负责释放缓存等资源
func buildAnalysisService(c *appconfig.Config, logger *logrus.Logger, store storage.Storage, extra ...services.AnalysisOption) (*services.AnalysisService, func(), error) {
	embedder, closeCache, err := setupEmbedder(c, logger)
	if err != nil {
		return nil, nil, err
	}

	opts := []services.AnalysisOption{
		services.WithLogger(logger),
		services.WithReaderFactory(document.ReaderFactory,
			document.WithReaderLogger(logger),
			document.WithLineTolerance(c.Pipeline.LineTolerance),
			document.WithBlockGapRatio(c.Pipeline.BlockGapRatio),
		),
		services.WithExtractor(document.NewSectionExtractor(document.WithExtractorLogger(logger))),
		services.WithAggregator(aggregate.NewAggregator(
			aggregate.WithTopSections(c.Pipeline.TopSections),
			aggregate.WithSubsectionWindow(c.Pipeline.SubsectionWindow),
			aggregate.WithMinParagraphWords(c.Pipeline.MinParagraphWords),
			aggregate.WithLogger(logger),
		)),
		services.WithOutputName(c.Output.FileName),
		services.WithInputGlobs(c.Input.ConfigGlob, c.Input.DocumentGlob),
	}

	if c.Refine.Enable {
		refiner, err := setupRefiner(c, logger)
		if err != nil {
			closeCache()
			return nil, nil, err
		}
		opts = append(opts, services.WithRefiner(refiner, services.RefineMode(c.Refine.Mode)))
	}

	ranker := ranking.NewSemanticRanker(embedder, logger)
	srv := services.NewAnalysisService(ranker, store, append(opts, extra...)...)
	return srv, closeCache, nil
}

// setupEmbedder 创建嵌入客户端，按配置叠加分批与缓存
func setupEmbedder(c *appconfig.Config, logger *logrus.Logger) (embedding.Client, func(), error) {
	endpoint := c.Embed.Endpoint
	if endpoint == "" && c.Embed.Provider == "python" {
		endpoint = c.PythonService.BaseURL
	}

	client, err := embedding.New(embedding.Config{
		Provider:   c.Embed.Provider,
		APIKey:     c.Embed.APIKey,
		BaseURL:    endpoint,
		Model:      c.Embed.Model,
		Timeout:    c.Embed.Timeout,
		MaxRetries: c.Embed.MaxRetries,
		Dimensions: c.Embed.Dimensions,
		Normalize:  c.Embed.Normalize,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}
	client = embedding.NewBatchedClient(client, c.Embed.BatchSize, 4)

	noop := func() {}
	if !c.Cache.Enable {
		return client, noop, nil
	}

	vc, err := setupCache(c)
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(logrus.Fields{
		"kind": c.Cache.Type,
		"ttl":  time.Duration(c.Cache.TTL) * time.Second,
	}).Info("Embedding cache enabled")

	closer := func() {
		if err := vc.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close embedding cache")
		}
	}
	return embedding.NewCachedClient(client, vc, logger), closer, nil
}

// setupCache 打开嵌入向量缓存
func setupCache(c *appconfig.Config) (cache.VectorCache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Kind = c.Cache.Type
	cacheConfig.RedisAddr = c.Cache.Address
	cacheConfig.RedisPassword = c.Cache.Password
	cacheConfig.RedisDB = c.Cache.DB
	cacheConfig.TTL = time.Duration(c.Cache.TTL) * time.Second
	if c.Cache.Prefix != "" {
		cacheConfig.Namespace = c.Cache.Prefix
	}
	if c.Cache.BoltPath != "" {
		cacheConfig.BoltPath = c.Cache.BoltPath
	}

	vc, err := cache.Open(cacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return vc, nil
}

// setupRefiner 创建生成模型客户端与段落改写器
func setupRefiner(c *appconfig.Config, logger *logrus.Logger) (*llm.Refiner, error) {
	endpoint := c.LLM.Endpoint
	if endpoint == "" && c.LLM.Provider == "python" {
		endpoint = c.PythonService.BaseURL
	}

	generator, err := llm.New(llm.Config{
		Provider:    c.LLM.Provider,
		APIKey:      c.LLM.APIKey,
		BaseURL:     endpoint,
		Model:       c.LLM.Model,
		Timeout:     c.LLM.Timeout,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return llm.NewRefiner(generator, llm.WithRefinerLogger(logger)), nil
}

// setupStorage 创建结果存储，本地存储写入localPath
func setupStorage(ctx context.Context, c *appconfig.Config, localPath string) (storage.Storage, error) {
	store, err := storage.New(ctx, storage.Config{
		Type:  c.Storage.Type,
		Local: storage.LocalConfig{Path: localPath},
		Minio: storage.MinioConfig{
			Endpoint:  c.Storage.Endpoint,
			AccessKey: c.Storage.AccessKey,
			SecretKey: c.Storage.SecretKey,
			UseSSL:    c.Storage.UseSSL,
			Bucket:    c.Storage.Bucket,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// setupDatabase 初始化运行历史数据库
func setupDatabase(c *appconfig.Config, logger *logrus.Logger) error {
	dbConfig := database.DefaultConfig()
	if c.Database.Type != "" {
		dbConfig.Type = c.Database.Type
	}
	if c.Database.DSN != "" {
		dbConfig.DSN = c.Database.DSN
	}
	if err := database.Setup(dbConfig, logger); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// newStatusManager 基于全局数据库创建运行状态管理器
func newStatusManager(logger *logrus.Logger) *services.RunStatusManager {
	return services.NewRunStatusManager(repository.NewRunRepository(), logger)
}
