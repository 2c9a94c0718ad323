package cache

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache 进程内向量缓存，基于go-cache
type MemoryCache struct {
	entries *gocache.Cache
}

// NewMemoryCache 创建内存向量缓存
func NewMemoryCache(cfg Config) (VectorCache, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = DefaultConfig().SweepInterval
	}
	return &MemoryCache{entries: gocache.New(ttl, sweep)}, nil
}

// Lookup 返回向量副本，调用方修改不会影响缓存
func (m *MemoryCache) Lookup(_ context.Context, key Key) ([]float32, bool, error) {
	value, ok := m.entries.Get(key.String())
	if !ok {
		return nil, false, nil
	}
	vec, ok := value.([]float32)
	if !ok {
		return nil, false, ErrCorruptEntry
	}
	return append([]float32(nil), vec...), true, nil
}

// Store 写入向量副本
func (m *MemoryCache) Store(_ context.Context, key Key, vec []float32) error {
	m.entries.SetDefault(key.String(), append([]float32(nil), vec...))
	return nil
}

// Purge 清空缓存
func (m *MemoryCache) Purge(context.Context) error {
	m.entries.Flush()
	return nil
}

// Close 内存缓存无需释放资源
func (m *MemoryCache) Close() error {
	return nil
}

func init() {
	Register("memory", NewMemoryCache)
}
