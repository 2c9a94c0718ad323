package aggregate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	defaultTopSections       = 5
	defaultSubsectionWindow  = 10
	defaultMinParagraphWords = 8
)

var paragraphBreak = regexp.MustCompile(`\n+`)

// Result 跨文档聚合的结果
type Result struct {
	Sections    []models.ExtractedSection
	Subsections []models.SubsectionAnalysis
}

// Aggregator 跨文档聚合器
type Aggregator struct {
	topSections       int
	subsectionWindow  int
	minParagraphWords int
	logger            *logrus.Logger
}

// Option 聚合器配置选项
type Option func(*Aggregator)

// WithTopSections 设置输出章节数上限
func WithTopSections(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.topSections = n
		}
	}
}

// WithSubsectionWindow 设置提取段落的章节窗口
func WithSubsectionWindow(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.subsectionWindow = n
		}
	}
}

// WithMinParagraphWords 设置段落最少词数
func WithMinParagraphWords(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minParagraphWords = n
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator 创建聚合器
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		topSections:       defaultTopSections,
		subsectionWindow:  defaultSubsectionWindow,
		minParagraphWords: defaultMinParagraphWords,
		logger:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate 对全部文档的章节做全局排序，按标题去重选出排名章节，并从前若干章节中提取段落
// 输入为空时返回ErrNoRelevantSections
func (a *Aggregator) Aggregate(sections []models.Section, keywords []string) (Result, error) {
	if len(sections) == 0 {
		return Result{}, models.ErrNoRelevantSections
	}

	ordered := make([]models.Section, len(sections))
	copy(ordered, sections)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FinalScore > ordered[j].FinalScore
	})

	result := Result{
		Sections:    a.selectSections(ordered),
		Subsections: a.extractSubsections(ordered, keywords),
	}

	a.logger.WithFields(logrus.Fields{
		"candidates":  len(ordered),
		"sections":    len(result.Sections),
		"subsections": len(result.Subsections),
	}).Info("Aggregated sections across documents")
	return result, nil
}

// selectSections 按全局顺序选取标题未出现过的章节
func (a *Aggregator) selectSections(ordered []models.Section) []models.ExtractedSection {
	seen := make(map[string]struct{})
	selected := make([]models.ExtractedSection, 0, a.topSections)
	for _, s := range ordered {
		if len(selected) >= a.topSections {
			break
		}
		if _, dup := seen[s.Title]; dup {
			continue
		}
		seen[s.Title] = struct{}{}
		selected = append(selected, models.ExtractedSection{
			Document:       s.Document,
			SectionTitle:   s.Title,
			PageNumber:     s.PageNumber,
			ImportanceRank: len(selected) + 1,
		})
	}
	return selected
}

// extractSubsections 从前N个章节中提取包含关键词的段落
func (a *Aggregator) extractSubsections(ordered []models.Section, keywords []string) []models.SubsectionAnalysis {
	window := ordered
	if len(window) > a.subsectionWindow {
		window = window[:a.subsectionWindow]
	}

	subsections := make([]models.SubsectionAnalysis, 0)
	for _, s := range window {
		for _, para := range SplitParagraphs(s.Content) {
			if len(strings.Fields(para)) < a.minParagraphWords {
				continue
			}
			if !containsKeyword(strings.ToLower(para), keywords) {
				continue
			}
			subsections = append(subsections, models.SubsectionAnalysis{
				Document:    s.Document,
				RefinedText: para,
				PageNumber:  s.PageNumber,
			})
		}
	}
	return subsections
}

// SplitParagraphs 按连续换行切分段落，去掉空段
func SplitParagraphs(content string) []string {
	var paragraphs []string
	for _, p := range paragraphBreak.Split(content, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

func containsKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
