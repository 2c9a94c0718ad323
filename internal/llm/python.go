package llm

import (
	"context"
	"errors"

	"github.com/fyerfyer/persona-doc-analyzer/internal/pyprovider"
)

// PythonGenerator 调用Python模型服务的seq2seq生成
type PythonGenerator struct {
	service *pyprovider.Service
	model   string
}

// NewPythonGenerator 按配置连接Python模型服务
func NewPythonGenerator(cfg Config) (Generator, error) {
	pyConfig := pyprovider.DefaultConfig()
	if cfg.BaseURL != "" {
		pyConfig.BaseURL = cfg.BaseURL
	}
	pyConfig.Timeout = cfg.Timeout
	pyConfig.MaxRetries = cfg.MaxRetries

	service, err := pyprovider.NewService(pyConfig)
	if err != nil {
		return nil, wrapError("python", CodeBadRequest, err)
	}
	return NewPythonGeneratorWith(service, cfg.Model), nil
}

// NewPythonGeneratorWith 基于已有的服务客户端创建生成器
func NewPythonGeneratorWith(service *pyprovider.Service, model string) *PythonGenerator {
	if model == "" {
		model = ModelT5Small
	}
	return &PythonGenerator{service: service, model: model}
}

// Model 返回模型名称
func (g *PythonGenerator) Model() string {
	return g.model
}

// Generate 生成文本，束搜索参数原样交给服务端
func (g *PythonGenerator) Generate(ctx context.Context, prompt string, params GenerationParams) (*Generation, error) {
	if prompt == "" {
		return nil, newError("python", CodeEmptyPrompt, "prompt cannot be empty")
	}

	resp, err := g.service.Generate(ctx, pyprovider.GenerateRequest{
		Prompt:        prompt,
		Model:         g.model,
		MinLength:     params.MinLength,
		MaxLength:     params.MaxLength,
		NumBeams:      params.NumBeams,
		LengthPenalty: params.LengthPenalty,
	})
	if err != nil {
		var se *pyprovider.StatusError
		if errors.As(err, &se) {
			return nil, wrapError("python", codeForStatus(se.StatusCode), err)
		}
		return nil, wrapError("python", CodeUnavailable, err)
	}
	if resp.Text == "" {
		return nil, newError("python", CodeEmptyOutput, "model returned no text")
	}

	return &Generation{Text: resp.Text, Model: g.model, Tokens: resp.TotalTokens}, nil
}

func init() {
	Register("python", NewPythonGenerator)
}
