package ragquery

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOptions(t *testing.T) {
	opts := NewOptions()

	assert.Equal(t, ":8084", opts.Server.Addr)
	assert.Equal(t, "gateway", opts.Embedding.Provider)
	assert.Equal(t, "http://embedding-service:8085", opts.Embedding.BaseURL)
	assert.Equal(t, "http://llm-service:8086", opts.Generation.BaseURL)
	assert.Equal(t, "documents", opts.RAG.Collection)
	assert.Equal(t, 5, opts.RAG.TopK)
	assert.Equal(t, 0.7, opts.RAG.SimilarityThreshold)
	assert.True(t, opts.Cache.Enabled)
	assert.Equal(t, "rag:query:", opts.Cache.KeyPrefix)
}

func TestOptions_Validate(t *testing.T) {
	t.Run("默认配置合法", func(t *testing.T) {
		opts := NewOptions()
		require.NoError(t, opts.Complete())
		assert.NoError(t, opts.Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"缺少监听地址", func(o *Options) { o.Server.Addr = "" }},
		{"缺少 Milvus 地址", func(o *Options) { o.Milvus.Address = "" }},
		{"缺少 Embedding 供应商", func(o *Options) { o.Embedding.Provider = "" }},
		{"缺少 Generation base URL", func(o *Options) { o.Generation.BaseURL = "" }},
		{"缺少集合名称", func(o *Options) { o.RAG.Collection = "" }},
		{"top-k 非正", func(o *Options) { o.RAG.TopK = 0 }},
		{"阈值超出范围", func(o *Options) { o.RAG.SimilarityThreshold = 1.5 }},
		{"token 预算非正", func(o *Options) { o.RAG.MaxContextTokens = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.mutate(opts)
			assert.Error(t, opts.Validate())
		})
	}
}

func TestOptions_AddFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--server.addr=:9090",
		"--rag.top-k=10",
		"--cache.enabled=false",
		"--embedding.provider=ollama",
	}))

	assert.Equal(t, ":9090", opts.Server.Addr)
	assert.Equal(t, 10, opts.RAG.TopK)
	assert.False(t, opts.Cache.Enabled)
	assert.Equal(t, "ollama", opts.Embedding.Provider)
}

func TestOptions_Complete(t *testing.T) {
	opts := NewOptions()
	opts.Cache.Redis = nil

	require.NoError(t, opts.Complete())
	require.NotNil(t, opts.Cache.Redis)
	assert.Equal(t, "localhost", opts.Cache.Redis.Host)
	assert.Equal(t, 6379, opts.Cache.Redis.Port)
}

func TestProviderOptions_ToConfigMap(t *testing.T) {
	opts := NewProviderOptions()
	opts.BaseURL = "http://localhost:11434"
	opts.Model = "qwen2.5:7b"

	m := opts.ToConfigMap()
	assert.Equal(t, "http://localhost:11434", m["base_url"])
	assert.Equal(t, "qwen2.5:7b", m["embed_model"])
	assert.Equal(t, "qwen2.5:7b", m["generate_model"])
	assert.Equal(t, 3, m["max_retries"])
}
