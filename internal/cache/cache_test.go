package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCache 测试内存缓存的基本功能
func TestMemoryCache(t *testing.T) {
	config := Config{
		Type:            "memory",
		DefaultTTL:      time.Second * 2,
		CleanupInterval: time.Second,
	}
	cache, err := NewMemoryCache(config)
	require.NoError(t, err)

	// Set和Get
	require.NoError(t, cache.Set("key1", "value1", 0))
	val, found, err := cache.Get("key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value1", val)

	// 不存在的键
	val, found, err = cache.Get("non-existent")
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	// 过期
	require.NoError(t, cache.Set("expire-soon", "temp-value", time.Millisecond*500))
	time.Sleep(time.Second)
	_, found, err = cache.Get("expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 删除
	require.NoError(t, cache.Set("to-delete", "delete-me", 0))
	require.NoError(t, cache.Delete("to-delete"))
	_, found, _ = cache.Get("to-delete")
	assert.False(t, found)

	// 清空
	require.NoError(t, cache.Set("key2", "value2", 0))
	require.NoError(t, cache.Clear())
	_, found, _ = cache.Get("key2")
	assert.False(t, found)
}

// TestRedisCache 测试Redis缓存，使用miniredis模拟服务端
func TestRedisCache(t *testing.T) {
	server := miniredis.RunT(t)

	config := Config{
		Type:       "redis",
		RedisAddr:  server.Addr(),
		DefaultTTL: time.Second * 2,
	}
	cache, err := NewRedisCache(config)
	require.NoError(t, err)

	// Set和Get
	require.NoError(t, cache.Set("redis-key1", "redis-value1", 0))
	val, found, err := cache.Get("redis-key1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "redis-value1", val)

	// 不存在的键
	_, found, err = cache.Get("redis-non-existent")
	assert.NoError(t, err)
	assert.False(t, found)

	// 过期，miniredis需要手动推进时间
	require.NoError(t, cache.Set("redis-expire-soon", "redis-temp-value", time.Second))
	server.FastForward(2 * time.Second)
	_, found, err = cache.Get("redis-expire-soon")
	assert.NoError(t, err)
	assert.False(t, found)

	// 删除
	require.NoError(t, cache.Set("redis-to-delete", "redis-delete-me", 0))
	require.NoError(t, cache.Delete("redis-to-delete"))
	_, found, _ = cache.Get("redis-to-delete")
	assert.False(t, found)

	// 清空
	require.NoError(t, cache.Set("redis-key2", "value", 0))
	require.NoError(t, cache.Clear())
	_, found, _ = cache.Get("redis-key2")
	assert.False(t, found)
}

// TestCacheFactory 测试缓存工厂函数
func TestCacheFactory(t *testing.T) {
	memCache, err := NewCache(DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, memCache)

	server := miniredis.RunT(t)
	redisCache, err := NewCache(Config{Type: "redis", RedisAddr: server.Addr()})
	require.NoError(t, err)
	require.NoError(t, redisCache.Set("factory-test", "value", 0))

	// 未知缓存类型回退到内存缓存
	unknownCache, err := NewCache(Config{Type: "unknown-type"})
	assert.NoError(t, err)
	assert.NotNil(t, unknownCache)
}

// TestGenerateCacheKey 测试缓存键生成
func TestGenerateCacheKey(t *testing.T) {
	assert.Equal(t, "prefix", GenerateCacheKey("prefix"))
	assert.Equal(t, "prefix:part1", GenerateCacheKey("prefix", "part1"))
	assert.Equal(t, "prefix:part1:part2:part3", GenerateCacheKey("prefix", "part1", "part2", "part3"))
}

// TestAnswerCacheKey 测试问答缓存键生成
func TestAnswerCacheKey(t *testing.T) {
	// 相同问题（忽略大小写和首尾空格）生成相同的键
	key1 := AnswerCacheKey("Who attended the meeting?")
	key2 := AnswerCacheKey("  who attended the meeting?  ")
	assert.Equal(t, key1, key2)

	// 不同问题或不同过滤条件生成不同的键
	assert.NotEqual(t, key1, AnswerCacheKey("What was decided?"))
	assert.NotEqual(t, key1, AnswerCacheKey("Who attended the meeting?", "mr"))
	assert.NotEqual(t,
		AnswerCacheKey("q", "mr"),
		AnswerCacheKey("q", "ed"))
}
