package cache

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// expiryWidth 条目头部的过期时间宽度（UnixNano，0表示不过期）
const expiryWidth = 8

// BoltCache 基于bbolt的持久化向量缓存
// 每个模型一个bucket，同一批文档重复分析时直接复用上次的向量
type BoltCache struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltCache 打开或创建bbolt缓存文件
func NewBoltCache(cfg Config) (VectorCache, error) {
	path := cfg.BoltPath
	if path == "" {
		path = DefaultConfig().BoltPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db %s: %w", path, err)
	}
	return &BoltCache{db: db, ttl: cfg.TTL, now: time.Now}, nil
}

// Lookup 读取向量，过期条目视为未命中并删除
func (b *BoltCache) Lookup(_ context.Context, key Key) ([]float32, bool, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(key.Model))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(key.Digest)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, false, err
	}
	if len(data) < expiryWidth {
		return nil, false, ErrCorruptEntry
	}

	expires := int64(binary.BigEndian.Uint64(data[:expiryWidth]))
	if expires > 0 && b.now().UnixNano() >= expires {
		return nil, false, b.remove(key)
	}

	vec, err := decodeVector(data[expiryWidth:])
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Store 写入向量，必要时创建模型bucket
func (b *BoltCache) Store(_ context.Context, key Key, vec []float32) error {
	data := make([]byte, expiryWidth, expiryWidth+4*len(vec))
	if b.ttl > 0 {
		binary.BigEndian.PutUint64(data, uint64(b.now().Add(b.ttl).UnixNano()))
	}
	data = append(data, encodeVector(vec)...)

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(key.Model))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(key.Digest), data)
	})
}

func (b *BoltCache) remove(key Key) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(key.Model))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key.Digest))
	})
}

// Purge 删除全部模型bucket
func (b *BoltCache) Purge(context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		var names [][]byte
		err := tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
			names = append(names, append([]byte(nil), name...))
			return nil
		})
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭数据库文件
func (b *BoltCache) Close() error {
	return b.db.Close()
}

func init() {
	Register("bolt", NewBoltCache)
}
