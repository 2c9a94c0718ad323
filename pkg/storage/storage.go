package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// ObjectInfo 存储对象元数据
type ObjectInfo struct {
	Key         string // 对象键，使用/分隔
	Size        int64  // 对象大小(字节)
	ContentType string // MIME类型
	Location    string // 实现相关的位置描述，本地为绝对路径
}

// Storage 分析产物存储接口
// 对象按键寻址，可以有不同实现(本地文件系统、MinIO等)
type Storage interface {
	// Put 写入对象，已存在时覆盖
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (ObjectInfo, error)

	// Get 读取对象内容，不存在时返回ErrNotFound
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, key string) (bool, error)

	// Delete 删除对象
	Delete(ctx context.Context, key string) error

	// List 列出指定前缀下的对象
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// Config 存储配置
type Config struct {
	Type  string // local 或 minio
	Local LocalConfig
	Minio MinioConfig
}

// New 根据配置创建存储实现
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case "local", "":
		return NewLocalStorage(cfg.Local)
	case "minio":
		return NewMinioStorage(ctx, cfg.Minio)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// RunKey 构造某次运行下的对象键
func RunKey(runID, name string) string {
	return path.Join("runs", runID, name)
}

// cleanKey 规范化对象键，拒绝越出根目录的键
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(key)), "/")
	if key == "" || key == "." {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return key, nil
}

// getMimeType 简单根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".json":
		return "application/json"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
