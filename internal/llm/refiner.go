package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxPromptWords 提示词中源文本的词数上限
const maxPromptWords = 1024

// 精炼与摘要的生成参数
var (
	RefineParams  = GenerationParams{MinLength: 120, MaxLength: 350, NumBeams: 4, LengthPenalty: 2.0}
	SummaryParams = GenerationParams{MinLength: 70, MaxLength: 200, NumBeams: 4, LengthPenalty: 2.5}
)

// RefineTemplate 精炼提示词模板
// 包含变量：
// {{.Query}} - 查询文本
// {{.Text}} - 源文本
const RefineTemplate = `Based on the user's request for '{{.Query}}', extract the most relevant information from the following text. ` +
	`Combine the key points into a comprehensive and detailed paragraph of 120-150 words. Do not just list facts, ` +
	`but explain them in a readable and informative way. Text: {{.Text}}`

// SummaryTemplate 摘要提示词模板
const SummaryTemplate = `Based on the user's request for '{{.Query}}', provide a detailed summary of the ` +
	`following text. Focus on the key ingredients, preparation steps, and any ` +
	`details relevant to the request. Text to summarize: {{.Text}}`

// Refiner 基于生成模型的段落精炼与摘要
type Refiner struct {
	generator Generator
	logger *logrus.Logger
}

// RefinerOption 精炼器配置选项
type RefinerOption func(*Refiner)

// WithRefinerLogger 设置日志记录器
func WithRefinerLogger(logger *logrus.Logger) RefinerOption {
	return func(r *Refiner) {
		r.logger = logger
	}
}

// NewRefiner 创建精炼器
func NewRefiner(generator Generator, opts ...RefinerOption) *Refiner {
	r := &Refiner{generator: generator, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefineText 把源文本改写为围绕查询的详细段落，空文本直接返回空串
func (r *Refiner) RefineText(ctx context.Context, query, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return r.generate(ctx, RefineTemplate, query, text, RefineParams)
}

// Summarize 生成围绕查询的摘要，空文本直接返回空串
func (r *Refiner) Summarize(ctx context.Context, query, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	return r.generate(ctx, SummaryTemplate, query, text, SummaryParams)
}

func (r *Refiner) generate(ctx context.Context, template, query, text string, params GenerationParams) (string, error) {
	prompt := buildPrompt(template, query, text)
	gen, err := r.generator.Generate(ctx, prompt, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate with %s: %w", r.generator.Model(), err)
	}

	r.logger.WithFields(logrus.Fields{
		"model":  gen.Model,
		"tokens": gen.Tokens,
	}).Debug("Generated refined text")
	return strings.TrimSpace(gen.Text), nil
}

// buildPrompt 填充模板，源文本截断到maxPromptWords个词
func buildPrompt(template, query, text string) string {
	prompt := strings.ReplaceAll(template, "{{.Query}}", query)
	return strings.ReplaceAll(prompt, "{{.Text}}", truncateWords(text, maxPromptWords))
}

func truncateWords(text string, limit int) string {
	fields := strings.Fields(text)
	if len(fields) <= limit {
		return text
	}
	return strings.Join(fields[:limit], " ")
}
