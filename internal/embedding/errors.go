package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 嵌入失败的类别
type ErrorCode string

const (
	CodeUnknownProvider ErrorCode = "unknown_provider"
	CodeUnauthorized    ErrorCode = "unauthorized"
	CodeBadRequest      ErrorCode = "bad_request"
	CodeRateLimited     ErrorCode = "rate_limited"
	CodeUnavailable     ErrorCode = "unavailable"
	CodeTimeout         ErrorCode = "timeout"
	CodeEmptyInput      ErrorCode = "empty_input"
	CodeBadResponse     ErrorCode = "bad_response"
)

// ProviderError 嵌入模型调用失败
type ProviderError struct {
	Provider string
	Code     ErrorCode
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("embedding %s: %s: %s: %v", e.Provider, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("embedding %s: %s: %s", e.Provider, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newError(provider string, code ErrorCode, message string) *ProviderError {
	return &ProviderError{Provider: provider, Code: code, Message: message}
}

// wrapError 包装底层错误，超时单独归类
func wrapError(provider string, code ErrorCode, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &ProviderError{Provider: provider, Code: code, Message: "request failed", Err: err}
}

// IsCode 判断错误链中是否包含指定类别的ProviderError
func IsCode(err error, code ErrorCode) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == code
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
