package llm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder 记录底层调用次数，用于验证缓存命中。
type countingEmbedder struct {
	embedCalls  int
	singleCalls int
}

func (c *countingEmbedder) Name() string { return "counting" }

func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	c.embedCalls++
	result := make([][]float32, len(texts))
	for i, text := range texts {
		result[i] = []float32{float32(len(text))}
	}
	return result, nil
}

func (c *countingEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	c.singleCalls++
	return []float32{float32(len(text))}, nil
}

func setupCachedProvider(t *testing.T) (*CachedEmbeddingProvider, *countingEmbedder, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	underlying := &countingEmbedder{}
	cached := NewCachedEmbeddingProvider(underlying, client, nil)
	return cached, underlying, mr
}

func TestCachedEmbeddingProvider_EmbedSingle(t *testing.T) {
	cached, underlying, _ := setupCachedProvider(t)
	ctx := context.Background()

	first, err := cached.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, 1, underlying.singleCalls)

	// 第二次命中缓存，不再调用底层 provider
	second, err := cached.EmbedSingle(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, 1, underlying.singleCalls)
	assert.Equal(t, first, second)
}

func TestCachedEmbeddingProvider_EmbedPartialMiss(t *testing.T) {
	cached, underlying, _ := setupCachedProvider(t)
	ctx := context.Background()

	_, err := cached.EmbedSingle(ctx, "cached text")
	require.NoError(t, err)

	// 批量请求中只有未命中的文本提交给底层 provider
	embeddings, err := cached.Embed(ctx, []string{"cached text", "new text"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{float32(len("cached text"))}, embeddings[0])
	assert.Equal(t, []float32{float32(len("new text"))}, embeddings[1])
	assert.Equal(t, 1, underlying.embedCalls)

	// 全部命中时不调用底层 provider
	_, err = cached.Embed(ctx, []string{"cached text", "new text"})
	require.NoError(t, err)
	assert.Equal(t, 1, underlying.embedCalls)
}

func TestCachedEmbeddingProvider_Disabled(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	underlying := &countingEmbedder{}
	cached := NewCachedEmbeddingProvider(underlying, client, &EmbeddingCacheConfig{Enabled: false})
	ctx := context.Background()

	_, err := cached.EmbedSingle(ctx, "text")
	require.NoError(t, err)
	_, err = cached.EmbedSingle(ctx, "text")
	require.NoError(t, err)

	// 禁用时每次都透传
	assert.Equal(t, 2, underlying.singleCalls)
	assert.Empty(t, mr.Keys())
}

func TestCachedEmbeddingProvider_CorruptedEntry(t *testing.T) {
	cached, underlying, mr := setupCachedProvider(t)
	ctx := context.Background()

	key := cached.cacheKey("broken")
	require.NoError(t, mr.Set(key, "not json"))

	// 损坏条目被删除并回退到底层 provider
	embedding, err := cached.EmbedSingle(ctx, "broken")
	require.NoError(t, err)
	assert.NotNil(t, embedding)
	assert.Equal(t, 1, underlying.singleCalls)
}

func TestCachedEmbeddingProvider_Name(t *testing.T) {
	cached, _, _ := setupCachedProvider(t)
	assert.Equal(t, "counting-cached", cached.Name())
}

func TestCachedEmbeddingProvider_ClearAndStats(t *testing.T) {
	cached, _, mr := setupCachedProvider(t)
	ctx := context.Background()

	_, err := cached.EmbedSingle(ctx, "one")
	require.NoError(t, err)
	_, err = cached.EmbedSingle(ctx, "two")
	require.NoError(t, err)

	stats, err := cached.GetCacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats["key_count"])
	assert.Equal(t, "counting", stats["provider"])

	require.NoError(t, cached.ClearCache(ctx))
	assert.Empty(t, mr.Keys())
}

func TestCachedEmbeddingProvider_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	underlying := &countingEmbedder{}
	cached := NewCachedEmbeddingProvider(underlying, client, &EmbeddingCacheConfig{
		Enabled:   true,
		TTL:       time.Minute,
		KeyPrefix: "emb:",
	})
	ctx := context.Background()

	_, err := cached.EmbedSingle(ctx, "expiring")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cached.EmbedSingle(ctx, "expiring")
	require.NoError(t, err)
	assert.Equal(t, 2, underlying.singleCalls)
}
