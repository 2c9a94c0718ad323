package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/fyerfyer/persona-doc-analyzer/api/model"
	"github.com/fyerfyer/persona-doc-analyzer/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// ErrorKind 接口错误分类
type ErrorKind string

const (
	KindInvalidInput ErrorKind = "INVALID_INPUT" // 请求参数或上传内容不合法
	KindRunNotFound  ErrorKind = "RUN_NOT_FOUND" // 运行记录不存在
	KindNoSections   ErrorKind = "NO_SECTIONS"   // 分析完成但没有相关章节
	KindInternal     ErrorKind = "INTERNAL"      // 流水线或存储失败
)

var kindStatus = map[ErrorKind]int{
	KindInvalidInput: http.StatusBadRequest,
	KindRunNotFound:  http.StatusNotFound,
	KindNoSections:   http.StatusUnprocessableEntity,
	KindInternal:     http.StatusInternalServerError,
}

// APIError 携带分类的接口错误
type APIError struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Status 分类对应的HTTP状态码
func (e *APIError) Status() int {
	if code, ok := kindStatus[e.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// InvalidInput 创建参数错误，detail为出错的字段或文件名
func InvalidInput(message string, detail ...string) *APIError {
	return &APIError{Kind: KindInvalidInput, Message: message, Detail: strings.Join(detail, "; ")}
}

// classify 把处理器返回的错误归类
// 领域哨兵错误按语义映射，其余一律视为内部错误
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
		}
		return &APIError{Kind: KindInvalidInput, Message: "invalid request", Detail: strings.Join(fields, "; "), Err: err}
	case errors.Is(err, models.ErrRunNotFound):
		return &APIError{Kind: KindRunNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, models.ErrNoRelevantSections):
		return &APIError{Kind: KindNoSections, Message: "no relevant sections found", Err: err}
	case errors.Is(err, models.ErrNoDocuments), errors.Is(err, models.ErrInvalidRunConfig):
		return &APIError{Kind: KindInvalidInput, Message: err.Error(), Err: err}
	}

	msg := "internal server error"
	if gin.Mode() == gin.DebugMode {
		msg = err.Error()
	}
	return &APIError{Kind: KindInternal, Message: msg, Err: err}
}

// ErrorMiddleware 把c.Errors中最后一个错误写成统一响应，并兜底panic
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.WithFields(logrus.Fields{
				FieldError: rec,
				FieldPath:  c.Request.URL.Path,
				"stack":    string(debug.Stack()),
			}).Error("Recovered from handler panic")

			resp := model.NewErrorResponse(http.StatusInternalServerError, "internal server error")
			if gin.Mode() == gin.DebugMode {
				resp.Message = fmt.Sprintf("panic: %v", rec)
			}
			resp.TraceID = c.GetString("TraceID")
			c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
		}()

		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		apiErr := classify(c.Errors.Last().Err)
		status := apiErr.Status()
		traceID := c.GetString("TraceID")

		entry := log.WithFields(logrus.Fields{
			"kind":       apiErr.Kind,
			FieldTraceID: traceID,
			FieldPath:    c.Request.URL.Path,
		})
		if apiErr.Detail != "" {
			entry = entry.WithField("detail", apiErr.Detail)
		}
		if status >= http.StatusInternalServerError {
			entry.WithError(apiErr.Err).Error("Request failed")
		} else {
			entry.Warn(apiErr.Message)
		}

		resp := model.NewErrorResponse(status, apiErr.Message)
		resp.TraceID = traceID
		c.AbortWithStatusJSON(status, resp)
	}
}

// HandleError 记录错误，交由ErrorMiddleware输出
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
