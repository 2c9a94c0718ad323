package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrCorruptEntry 缓存中的向量数据无法解码
var ErrCorruptEntry = errors.New("corrupt vector cache entry")

// VectorCache 嵌入向量缓存
// 同一模型对同一文本的向量只需计算一次，可跨运行复用
type VectorCache interface {
	// Lookup 查找向量，未命中时found为false
	Lookup(ctx context.Context, key Key) (vec []float32, found bool, err error)
	// Store 写入向量，过期时间由缓存配置决定
	Store(ctx context.Context, key Key, vec []float32) error
	// Purge 删除本缓存管理的全部向量
	Purge(ctx context.Context) error
	// Close 释放底层连接或文件
	Close() error
}

// Key 向量缓存键：模型名 + 文本的SHA-256摘要
type Key struct {
	Model  string
	Digest string
}

// KeyFor 为模型与文本生成缓存键
func KeyFor(model, text string) Key {
	sum := sha256.Sum256([]byte(text))
	return Key{Model: model, Digest: hex.EncodeToString(sum[:])}
}

func (k Key) String() string {
	return k.Model + ":" + k.Digest
}

// Config 缓存配置
type Config struct {
	// 后端类型: "memory", "redis", "bolt"
	Kind string
	// Redis连接参数
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Namespace Redis键前缀，Purge只清理该前缀下的键
	Namespace string
	// BoltPath bbolt数据库文件路径
	BoltPath string
	// TTL 向量过期时间，0表示不过期
	TTL time.Duration
	// SweepInterval 内存缓存清理过期条目的间隔
	SweepInterval time.Duration
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Kind:          "memory",
		Namespace:     "persona",
		BoltPath:      "data/embeddings.db",
		TTL:           24 * time.Hour,
		SweepInterval: 10 * time.Minute,
	}
}

// Opener 缓存后端构造函数
type Opener func(cfg Config) (VectorCache, error)

var backends = make(map[string]Opener)

// Register 注册缓存后端
func Register(kind string, open Opener) {
	backends[kind] = open
}

// Open 按配置打开缓存后端
func Open(cfg Config) (VectorCache, error) {
	if cfg.Kind == "" {
		cfg.Kind = "memory"
	}
	open, ok := backends[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown vector cache kind: %s", cfg.Kind)
	}
	return open(cfg)
}

// encodeVector 把向量编码为小端float32序列
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, ErrCorruptEntry
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
