package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fyerfyer/persona-doc-analyzer/config"
	"github.com/fyerfyer/persona-doc-analyzer/internal/aggregate"
	"github.com/fyerfyer/persona-doc-analyzer/internal/document"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/fyerfyer/persona-doc-analyzer/internal/relevance"
	"github.com/fyerfyer/persona-doc-analyzer/pkg/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// TimestampLayout 输出元数据中的时间格式，UTC时区显示为+00:00
	TimestampLayout = "2006-01-02T15:04:05.000000-07:00"
	// wholeSecondLayout 微秒为0时省略小数部分
	wholeSecondLayout = "2006-01-02T15:04:05-07:00"
)

// FormatTimestamp 按ISO-8601输出UTC时间，精确到微秒，微秒为0时不带小数
func FormatTimestamp(t time.Time) string {
	t = t.UTC().Truncate(time.Microsecond)
	if t.Nanosecond() == 0 {
		return t.Format(wholeSecondLayout)
	}
	return t.Format(TimestampLayout)
}

const (
	defaultOutputName   = "output.json"
	defaultConfigGlob   = "*.json"
	defaultDocumentGlob = "*.pdf"
)

// ReaderFactory 根据文件路径创建版面读取器
type ReaderFactory func(filePath string, opts ...document.ReaderOption) (document.LayoutReader, error)

// Ranker 语义排序器
type Ranker interface {
	Rank(ctx context.Context, query string, sections []models.Section) ([]models.Section, error)
}

// Refiner 段落改写器
type Refiner interface {
	RefineText(ctx context.Context, query, text string) (string, error)
	Summarize(ctx context.Context, query, text string) (string, error)
}

// RefineMode 段落改写方式
type RefineMode string

const (
	RefineModeRefine    RefineMode = "refine"
	RefineModeSummarize RefineMode = "summarize"
)

// ProgressFunc 每处理完一个文档回调一次
type ProgressFunc func(done, total int, document string)

// AnalysisRequest 一次分析的输入
type AnalysisRequest struct {
	RunID     string   // 为空时自动生成
	Persona   string   // 角色
	Task      string   // 任务
	Documents []string // PDF路径，按处理顺序
	OutputKey string   // 输出对象键，为空时使用服务默认文件名
}

// AnalysisResult 一次分析的结果
type AnalysisResult struct {
	RunID          string
	Domain         relevance.Domain
	Output         *models.Output
	OutputLocation string
}

// AnalysisService 分析服务
// 负责协调版面读取、章节提取、语义排序、领域过滤、跨文档聚合与结果存储
type AnalysisService struct {
	newReader     ReaderFactory
	readerOpts    []document.ReaderOption
	extractor     *document.SectionExtractor
	ranker        Ranker
	aggregator    *aggregate.Aggregator
	refiner       Refiner
	refineMode    RefineMode
	storage       storage.Storage
	statusManager *RunStatusManager
	progress      ProgressFunc
	outputName    string
	configGlob    string
	documentGlob  string
	now           func() time.Time
	logger        *logrus.Logger
}

// AnalysisOption 分析服务配置选项
type AnalysisOption func(*AnalysisService)

// NewAnalysisService 创建分析服务
func NewAnalysisService(ranker Ranker, store storage.Storage, opts ...AnalysisOption) *AnalysisService {
	srv := &AnalysisService{
		newReader:    document.ReaderFactory,
		ranker:       ranker,
		storage:      store,
		refineMode:   RefineModeRefine,
		outputName:   defaultOutputName,
		configGlob:   defaultConfigGlob,
		documentGlob: defaultDocumentGlob,
		now:          time.Now,
		logger:       logrus.New(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.extractor == nil {
		srv.extractor = document.NewSectionExtractor(document.WithExtractorLogger(srv.logger))
	}
	if srv.aggregator == nil {
		srv.aggregator = aggregate.NewAggregator(aggregate.WithLogger(srv.logger))
	}
	return srv
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) AnalysisOption {
	return func(s *AnalysisService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReaderFactory 设置版面读取器工厂
func WithReaderFactory(factory ReaderFactory, opts ...document.ReaderOption) AnalysisOption {
	return func(s *AnalysisService) {
		if factory != nil {
			s.newReader = factory
		}
		s.readerOpts = opts
	}
}

// WithExtractor 设置章节提取器
func WithExtractor(extractor *document.SectionExtractor) AnalysisOption {
	return func(s *AnalysisService) {
		s.extractor = extractor
	}
}

// WithAggregator 设置跨文档聚合器
func WithAggregator(aggregator *aggregate.Aggregator) AnalysisOption {
	return func(s *AnalysisService) {
		s.aggregator = aggregator
	}
}

// WithRefiner 启用段落改写
func WithRefiner(refiner Refiner, mode RefineMode) AnalysisOption {
	return func(s *AnalysisService) {
		s.refiner = refiner
		if mode != "" {
			s.refineMode = mode
		}
	}
}

// WithStatusManager 设置运行状态管理器，启用运行历史
func WithStatusManager(manager *RunStatusManager) AnalysisOption {
	return func(s *AnalysisService) {
		s.statusManager = manager
	}
}

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) AnalysisOption {
	return func(s *AnalysisService) {
		s.progress = fn
	}
}

// WithOutputName 设置输出文件名
func WithOutputName(name string) AnalysisOption {
	return func(s *AnalysisService) {
		if name != "" {
			s.outputName = name
		}
	}
}

// WithInputGlobs 设置运行配置与文档的匹配模式
func WithInputGlobs(configGlob, documentGlob string) AnalysisOption {
	return func(s *AnalysisService) {
		if configGlob != "" {
			s.configGlob = configGlob
		}
		if documentGlob != "" {
			s.documentGlob = documentGlob
		}
	}
}

// WithClock 设置时间来源
func WithClock(now func() time.Time) AnalysisOption {
	return func(s *AnalysisService) {
		if now != nil {
			s.now = now
		}
	}
}

// OutputName 返回默认输出文件名
func (s *AnalysisService) OutputName() string {
	return s.outputName
}

// DiscoverInputs 查找输入目录中的运行配置与PDF文档，结果按文件名排序
func DiscoverInputs(inputDir, configGlob, documentGlob string) (string, []string, error) {
	info, err := os.Stat(inputDir)
	if err != nil || !info.IsDir() {
		return "", nil, fmt.Errorf("%w: %s", models.ErrInputDirNotFound, inputDir)
	}

	fsys := os.DirFS(inputDir)
	configs, err := doublestar.Glob(fsys, configGlob, doublestar.WithFilesOnly())
	if err != nil {
		return "", nil, fmt.Errorf("invalid config pattern %q: %w", configGlob, err)
	}
	if len(configs) == 0 {
		return "", nil, fmt.Errorf("%w in %s", models.ErrConfigNotFound, inputDir)
	}
	sort.Strings(configs)

	docs, err := doublestar.Glob(fsys, documentGlob, doublestar.WithFilesOnly())
	if err != nil {
		return "", nil, fmt.Errorf("invalid document pattern %q: %w", documentGlob, err)
	}
	sort.Strings(docs)

	paths := make([]string, len(docs))
	for i, d := range docs {
		paths[i] = filepath.Join(inputDir, filepath.FromSlash(d))
	}
	return filepath.Join(inputDir, filepath.FromSlash(configs[0])), paths, nil
}

// Run 处理输入目录：读取运行配置，分析全部PDF并写出结果
func (s *AnalysisService) Run(ctx context.Context, inputDir string) (*AnalysisResult, error) {
	configPath, docs, err := DiscoverInputs(inputDir, s.configGlob, s.documentGlob)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("path", configPath).Info("Loading run configuration")
	rc, err := config.LoadRunConfig(configPath)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("%w in %s", models.ErrNoDocuments, inputDir)
	}

	return s.Analyze(ctx, AnalysisRequest{
		Persona:   rc.Persona.Role,
		Task:      rc.JobToBeDone.Task,
		Documents: docs,
	})
}

// Analyze 依次处理每个文档后做跨文档聚合
// 单个文档无法打开只记录警告，排序模型出错则整个运行失败
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if len(req.Documents) == 0 {
		return nil, models.ErrNoDocuments
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	if s.statusManager != nil {
		if err := s.statusManager.MarkAsRunning(ctx, runID, req.Persona, req.Task, req.Documents); err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
	}

	query := models.BuildQuery(req.Persona, req.Task)
	filter := relevance.NewFilter(query, relevance.WithLogger(s.logger))
	log := s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"domain": filter.Domain(),
	})
	log.WithField("documents", len(req.Documents)).Info("Starting analysis")

	var candidates []models.Section
	for i, path := range req.Documents {
		sections, err := s.processDocument(ctx, query, filter, path)
		if err != nil {
			s.markFailed(ctx, runID, err)
			return nil, err
		}
		candidates = append(candidates, sections...)
		if s.progress != nil {
			s.progress(i+1, len(req.Documents), filepath.Base(path))
		}
	}

	result, err := s.aggregator.Aggregate(candidates, filter.PositiveKeywords())
	if err != nil {
		if errors.Is(err, models.ErrNoRelevantSections) {
			log.Error("No relevant sections found across all documents, no output will be generated")
			if s.statusManager != nil {
				if markErr := s.statusManager.MarkAsEmpty(ctx, runID, string(filter.Domain()), err.Error()); markErr != nil {
					log.WithError(markErr).Warn("Failed to record empty run")
				}
			}
		} else {
			s.markFailed(ctx, runID, err)
		}
		return nil, err
	}

	subsections := s.refine(ctx, query, result.Subsections)

	inputs := make([]string, len(req.Documents))
	for i, d := range req.Documents {
		inputs[i] = filepath.Base(d)
	}
	output := &models.Output{
		Metadata: models.OutputMetadata{
			InputDocuments:      inputs,
			Persona:             req.Persona,
			JobToBeDone:         req.Task,
			ProcessingTimestamp: FormatTimestamp(s.now()),
		},
		ExtractedSections:  result.Sections,
		SubsectionAnalysis: subsections,
	}

	key := req.OutputKey
	if key == "" {
		key = s.outputName
	}
	location, err := s.writeOutput(ctx, key, output)
	if err != nil {
		s.markFailed(ctx, runID, err)
		return nil, err
	}

	if s.statusManager != nil {
		if err := s.statusManager.MarkAsCompleted(ctx, runID, string(filter.Domain()), location, output); err != nil {
			log.WithError(err).Warn("Failed to record completed run")
		}
	}

	log.WithFields(logrus.Fields{
		"sections":    len(output.ExtractedSections),
		"subsections": len(output.SubsectionAnalysis),
		"location":    location,
	}).Info("Successfully generated consolidated output")

	return &AnalysisResult{
		RunID:          runID,
		Domain:         filter.Domain(),
		Output:         output,
		OutputLocation: location,
	}, nil
}

// processDocument 提取、排序并过滤单个文档的章节
func (s *AnalysisService) processDocument(ctx context.Context, query string, filter *relevance.Filter, path string) ([]models.Section, error) {
	name := filepath.Base(path)
	log := s.logger.WithField("document", name)

	reader, err := s.newReader(path, s.readerOpts...)
	if err != nil {
		log.WithError(err).Warn("Skipping document with unsupported type")
		return nil, nil
	}

	pages, err := reader.ReadLayout(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.WithError(err).Warn("Failed to open document, skipping")
		return nil, nil
	}

	sections := s.extractor.Extract(name, pages)
	if len(sections) == 0 {
		return nil, nil
	}

	ranked, err := s.ranker.Rank(ctx, query, sections)
	if err != nil {
		return nil, fmt.Errorf("failed to rank sections of %s: %w", name, err)
	}
	filtered := filter.FilterAndRerank(ranked)

	log.WithFields(logrus.Fields{
		"extracted": len(sections),
		"kept":      len(filtered),
	}).Debug("Document processed")
	return filtered, nil
}

// refine 按配置改写段落，失败时保留原文
func (s *AnalysisService) refine(ctx context.Context, query string, subsections []models.SubsectionAnalysis) []models.SubsectionAnalysis {
	if s.refiner == nil {
		return subsections
	}

	out := make([]models.SubsectionAnalysis, len(subsections))
	copy(out, subsections)
	for i := range out {
		var text string
		var err error
		if s.refineMode == RefineModeSummarize {
			text, err = s.refiner.Summarize(ctx, query, out[i].RefinedText)
		} else {
			text, err = s.refiner.RefineText(ctx, query, out[i].RefinedText)
		}
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"document": out[i].Document,
				"page":     out[i].PageNumber,
			}).WithError(err).Warn("Failed to refine paragraph, keeping original text")
			continue
		}
		if text != "" {
			out[i].RefinedText = text
		}
	}
	return out
}

// writeOutput 以4空格缩进、不转义非ASCII字符的JSON写出结果
func (s *AnalysisService) writeOutput(ctx context.Context, key string, output *models.Output) (string, error) {
	data, err := EncodeOutput(output)
	if err != nil {
		return "", err
	}
	info, err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
	if err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return info.Location, nil
}

// EncodeOutput 序列化输出记录
func EncodeOutput(output *models.Output) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(output); err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *AnalysisService) markFailed(ctx context.Context, runID string, cause error) {
	if s.statusManager == nil {
		return
	}
	if err := s.statusManager.MarkAsFailed(ctx, runID, cause.Error()); err != nil {
		s.logger.WithError(err).WithField("run_id", runID).Warn("Failed to record failed run")
	}
}
