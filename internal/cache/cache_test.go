package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseCache 对任意后端执行通用的读写与清理检查
func exerciseCache(t *testing.T, c VectorCache) {
	t.Helper()
	ctx := context.Background()

	key := KeyFor("minilm", "vegetarian lasagne")
	vec := []float32{0.25, -1.5, 3}
	require.NoError(t, c.Store(ctx, key, vec))

	got, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, vec, got)

	_, found, err = c.Lookup(ctx, KeyFor("minilm", "unknown text"))
	require.NoError(t, err)
	assert.False(t, found)

	// 同一文本在不同模型下互不影响
	_, found, err = c.Lookup(ctx, KeyFor("other-model", "vegetarian lasagne"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Purge(ctx))
	_, found, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewMemoryCache(Config{TTL: 100 * time.Millisecond, SweepInterval: time.Second})
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)

	ctx := context.Background()
	key := KeyFor("minilm", "short lived")
	vec := []float32{1, 2}
	require.NoError(t, c.Store(ctx, key, vec))
	vec[0] = 42

	got, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float32(1), got[0])

	time.Sleep(200 * time.Millisecond)
	_, found, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewRedisCache(Config{RedisAddr: mr.Addr(), Namespace: "test", TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	exerciseCache(t, c)

	ctx := context.Background()
	key := KeyFor("minilm", "ttl text")
	require.NoError(t, c.Store(ctx, key, []float32{1}))
	assert.True(t, mr.Exists("test:"+key.String()))
	mr.FastForward(2 * time.Minute)
	_, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	// 命名空间之外的键不受Purge影响
	require.NoError(t, mr.Set("other", "keep"))
	require.NoError(t, c.Purge(ctx))
	assert.True(t, mr.Exists("other"))
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(Config{RedisAddr: mr.Addr(), Namespace: "test"})
	require.NoError(t, err)
	defer c.Close()

	key := KeyFor("minilm", "broken")
	require.NoError(t, mr.Set("test:"+key.String(), "abc"))

	_, found, err := c.Lookup(context.Background(), key)
	assert.ErrorIs(t, err, ErrCorruptEntry)
	assert.False(t, found)
	assert.False(t, mr.Exists("test:"+key.String()))
}

func TestRedisCacheUnavailable(t *testing.T) {
	_, err := NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestBoltCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	c, err := NewBoltCache(Config{BoltPath: path})
	require.NoError(t, err)
	exerciseCache(t, c)

	key := KeyFor("minilm", "persisted")
	require.NoError(t, c.Store(context.Background(), key, []float32{0.5, 0.5}))
	require.NoError(t, c.Close())

	reopened, err := NewBoltCache(Config{BoltPath: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, found, err := reopened.Lookup(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []float32{0.5, 0.5}, got)
}

func TestBoltCacheExpiry(t *testing.T) {
	c, err := NewBoltCache(Config{BoltPath: filepath.Join(t.TempDir(), "cache.db"), TTL: time.Minute})
	require.NoError(t, err)
	defer c.Close()

	bc := c.(*BoltCache)
	now := time.Now()
	bc.now = func() time.Time { return now }

	ctx := context.Background()
	key := KeyFor("minilm", "k")
	require.NoError(t, c.Store(ctx, key, []float32{1}))
	_, found, err := c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	bc.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, found, err = c.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpen(t *testing.T) {
	mem, err := Open(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, mem)

	bolt, err := Open(Config{Kind: "bolt", BoltPath: filepath.Join(t.TempDir(), "f.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltCache{}, bolt)
	bolt.Close()

	_, err = Open(Config{Kind: "memcached"})
	assert.Error(t, err)
}

func TestKeyFor(t *testing.T) {
	key := KeyFor("minilm", "hello")
	assert.Equal(t, "minilm", key.Model)
	assert.Len(t, key.Digest, 64)
	assert.Equal(t, key, KeyFor("minilm", "hello"))
	assert.NotEqual(t, key.Digest, KeyFor("minilm", "world").Digest)
	assert.Equal(t, "minilm:"+key.Digest, key.String())
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0, -0.125, 1e-6, 12345.5}
	got, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptEntry)
}
