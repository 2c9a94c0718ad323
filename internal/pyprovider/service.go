package pyprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config Python模型服务连接配置
type Config struct {
	BaseURL    string        // 服务基础URL，例如 http://localhost:8000/api
	Timeout    time.Duration // 单次请求超时
	MaxRetries int           // 网络错误与5xx响应的重试次数
	Backoff    time.Duration // 重试间隔基数，第n次重试等待n倍
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:    "http://localhost:8000/api",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
		Backoff:    time.Second,
	}
}

// StatusError 服务返回的非2xx响应
type StatusError struct {
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model service returned status %d: %s", e.StatusCode, e.Detail)
}

// Retryable 5xx响应可以重试，4xx说明请求本身有问题
func (e *StatusError) Retryable() bool {
	return e.StatusCode >= 500
}

// Service Python模型服务客户端
// 同一个服务同时提供sentence-transformers嵌入与seq2seq文本生成
type Service struct {
	http   *http.Client
	cfg    Config
	logger *logrus.Logger
}

// ServiceOption 服务客户端配置选项
type ServiceOption func(*Service)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient 替换底层HTTP客户端
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		if client != nil {
			s.http = client
		}
	}
}

// NewService 创建模型服务客户端
func NewService(cfg Config, opts ...ServiceOption) (*Service, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("python service base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	s := &Service{
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:    cfg,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseURL 返回服务基础URL
func (s *Service) BaseURL() string {
	return s.cfg.BaseURL
}

// post 以JSON发送请求并解码响应，可重试的失败按线性退避重试
func (s *Service) post(ctx context.Context, path string, query url.Values, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := s.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.Backoff * time.Duration(attempt)):
			}
		}

		lastErr = s.roundTrip(ctx, endpoint, payload, out)
		if lastErr == nil {
			return nil
		}
		if se, ok := lastErr.(*StatusError); ok && !se.Retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}

		s.logger.WithFields(logrus.Fields{
			"endpoint": path,
			"attempt":  attempt + 1,
		}).Warnf("Model service request failed: %v", lastErr)
	}
	return lastErr
}

func (s *Service) roundTrip(ctx context.Context, endpoint string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "persona-doc-analyzer")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("model service unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var detail struct {
			Detail string `json:"detail"`
		}
		se := &StatusError{StatusCode: resp.StatusCode, Detail: string(body)}
		if json.Unmarshal(body, &detail) == nil && detail.Detail != "" {
			se.Detail = detail.Detail
		}
		return se
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
