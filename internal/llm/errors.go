package llm

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 生成失败的类别
type ErrorCode string

const (
	CodeUnknownProvider ErrorCode = "unknown_provider"
	CodeUnauthorized    ErrorCode = "unauthorized"
	CodeBadRequest      ErrorCode = "bad_request"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeUnavailable     ErrorCode = "unavailable"
	CodeEmptyPrompt     ErrorCode = "empty_prompt"
	CodeEmptyOutput     ErrorCode = "empty_output"
)

// GenerationError 生成模型调用失败
type GenerationError struct {
	Provider string
	Code     ErrorCode
	Message  string
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("llm %s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

func newError(provider string, code ErrorCode, message string) *GenerationError {
	return &GenerationError{Provider: provider, Code: code, Message: message}
}

func wrapError(provider string, code ErrorCode, err error) *GenerationError {
	return &GenerationError{Provider: provider, Code: code, Message: "request failed", Err: err}
}

// IsCode 判断错误链中是否包含指定类别的GenerationError
func IsCode(err error, code ErrorCode) bool {
	var ge *GenerationError
	return errors.As(err, &ge) && ge.Code == code
}

// codeForStatus 把HTTP状态码映射为错误类别
func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CodeUnauthorized
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeUnavailable
	default:
		return CodeBadRequest
	}
}
