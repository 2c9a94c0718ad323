package document

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// headerSizeRatio 标题字号须大于正文字号的倍数
	headerSizeRatio = 1.1
	// maxHeaderWords 标题词数上限（不含）
	maxHeaderWords = 12
	// minHeaderChars 标题字符数下限（不含）
	minHeaderChars = 3
	// minSectionWords 章节正文词数下限（不含）
	minSectionWords = 10
)

// SectionExtractor 根据字体启发式把页面块切分为章节
type SectionExtractor struct {
	logger *logrus.Logger
}

// ExtractorOption 章节提取器配置选项
type ExtractorOption func(*SectionExtractor)

// WithExtractorLogger 设置日志记录器
func WithExtractorLogger(logger *logrus.Logger) ExtractorOption {
	return func(e *SectionExtractor) {
		e.logger = logger
	}
}

// NewSectionExtractor 创建章节提取器
func NewSectionExtractor(opts ...ExtractorOption) *SectionExtractor {
	e := &SectionExtractor{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract 提取文档全部页面的章节
// 章节不会跨页，正文不超过10个词的章节会被丢弃
func (e *SectionExtractor) Extract(document string, pages []Page) []models.Section {
	var sections []models.Section
	for _, page := range pages {
		sections = append(sections, e.extractPage(document, page)...)
	}
	e.logger.WithFields(logrus.Fields{
		"document": document,
		"sections": len(sections),
	}).Info("Extracted structured sections")
	return sections
}

// sectionAccumulator 单页折叠过程中的状态
type sectionAccumulator struct {
	document string
	page     int
	title    string
	parts    []string
	sections []models.Section
}

// flush 把当前标题与正文作为章节输出
func (a *sectionAccumulator) flush() {
	if len(a.parts) == 0 {
		return
	}
	content := strings.TrimSpace(strings.Join(a.parts, "\n"))
	if len(strings.Fields(content)) > minSectionWords {
		a.sections = append(a.sections, models.Section{
			Document:   a.document,
			PageNumber: a.page,
			Title:      a.title,
			Content:    content,
		})
	}
	a.parts = nil
}

func (e *SectionExtractor) extractPage(document string, page Page) []models.Section {
	bodySize, ok := BodyFontSize(page)
	if !ok {
		return nil
	}

	acc := &sectionAccumulator{
		document: document,
		page:     page.Number,
		title:    fmt.Sprintf("Content from Page %d", page.Number),
	}

	for _, block := range page.Blocks {
		if len(block.Lines) == 0 || len(block.Lines[0].Runs) == 0 {
			continue
		}

		if title, ok := headerText(block, bodySize); ok {
			acc.flush()
			acc.title = title
			if len(block.Lines) > 1 {
				acc.parts = []string{joinLines(block.Lines[1:])}
			}
			continue
		}
		acc.parts = append(acc.parts, block.Text())
	}
	acc.flush()

	return acc.sections
}

// BodyFontSize 页面正文字号：保留两位小数后出现次数最多的字号
// 次数相同时取先出现者；页面没有文字时返回false
func BodyFontSize(page Page) (float64, bool) {
	counts := make(map[float64]int)
	var order []float64
	for _, block := range page.Blocks {
		for _, line := range block.Lines {
			for _, run := range line.Runs {
				size := round2(run.FontSize)
				if counts[size] == 0 {
					order = append(order, size)
				}
				counts[size]++
			}
		}
	}
	if len(order) == 0 {
		return 0, false
	}

	body := order[0]
	for _, size := range order[1:] {
		if counts[size] > counts[body] {
			body = size
		}
	}
	return body, true
}

// headerText 判断块是否为标题，是则返回标题文本
func headerText(block Block, bodySize float64) (string, bool) {
	first := block.Lines[0]
	run := first.Runs[0]
	text := strings.TrimSpace(first.Join(" "))

	switch {
	case round2(run.FontSize) <= bodySize*headerSizeRatio:
		return "", false
	case !isBoldFont(run.FontName):
		return "", false
	case len(strings.Fields(text)) >= maxHeaderWords:
		return "", false
	case utf8.RuneCountInString(text) <= minHeaderChars:
		return "", false
	case strings.HasSuffix(text, "."):
		return "", false
	}

	r, _ := utf8.DecodeRuneInString(text)
	if !unicode.IsUpper(r) {
		return "", false
	}
	return text, true
}

// isBoldFont 字体名包含bold或black视为粗体
func isBoldFont(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "bold") || strings.Contains(lower, "black")
}
