// Package ragquery provides the RAG query service application.
package ragquery

import (
	"fmt"
	"time"

	logopt "github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/rag-query/internal/ragquery/biz"
	"github.com/kart-io/rag-query/pkg/component/milvus"
)

// Options contains all RAG query service options.
type Options struct {
	// Server contains HTTP server configuration.
	Server *ServerOptions `json:"server" mapstructure:"server"`

	// Log contains logger configuration.
	Log *logopt.LogOption `json:"log" mapstructure:"log"`

	// Milvus contains Milvus connection configuration.
	Milvus *milvus.Options `json:"milvus" mapstructure:"milvus"`

	// Embedding contains embedding provider configuration.
	Embedding *ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// Generation contains generation provider configuration.
	Generation *ProviderOptions `json:"generation" mapstructure:"generation"`

	// RAG contains retrieval and prompting configuration.
	RAG *RAGOptions `json:"rag" mapstructure:"rag"`

	// Cache contains result and embedding cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`
}

// ServerOptions HTTP 服务器配置。
type ServerOptions struct {
	// Addr 监听地址。
	Addr string `json:"addr" mapstructure:"addr"`

	// ShutdownTimeout 优雅关闭超时时间。
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions 创建默认服务器配置。
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:            ":8084",
		ShutdownTimeout: 30 * time.Second,
	}
}

// ProviderOptions 定义 LLM 供应商配置。
type ProviderOptions struct {
	// Provider 供应商名称（gateway, ollama）。
	Provider string `json:"provider" mapstructure:"provider"`

	// BaseURL API 基础地址。
	BaseURL string `json:"base-url" mapstructure:"base-url"`

	// Model 使用的模型名称（gateway 供应商由远端服务决定，可为空）。
	Model string `json:"model" mapstructure:"model"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewProviderOptions 创建默认供应商配置。
func NewProviderOptions() *ProviderOptions {
	return &ProviderOptions{
		Provider:   "gateway",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// ToConfigMap 转换为配置 map，用于供应商工厂。
func (o *ProviderOptions) ToConfigMap() map[string]any {
	return map[string]any{
		"base_url":       o.BaseURL,
		"embed_model":    o.Model,
		"generate_model": o.Model,
		"timeout":        o.Timeout,
		"max_retries":    o.MaxRetries,
	}
}

// RAGOptions contains retrieval and prompting configuration.
type RAGOptions struct {
	// Collection is the name of the Milvus collection to search.
	Collection string `json:"collection" mapstructure:"collection"`

	// TopK is the default number of results from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// SimilarityThreshold is the default minimum similarity score.
	SimilarityThreshold float64 `json:"similarity-threshold" mapstructure:"similarity-threshold"`

	// PromptTemplate is the generation prompt template. Empty uses the
	// built-in default.
	PromptTemplate string `json:"prompt-template" mapstructure:"prompt-template"`

	// MaxContextTokens is the token budget for the prompt context section.
	MaxContextTokens int `json:"max-context-tokens" mapstructure:"max-context-tokens"`

	// Temperature is passed to the generation provider.
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens bounds the generated answer length.
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`
}

// NewRAGOptions creates new RAGOptions with defaults.
func NewRAGOptions() *RAGOptions {
	return &RAGOptions{
		Collection:          "documents",
		TopK:                5,
		SimilarityThreshold: 0.7,
		MaxContextTokens:    2000,
		Temperature:         0.7,
		MaxTokens:           1000,
	}
}

// CacheOptions 缓存配置。
type CacheOptions struct {
	// Enabled 是否启用查询结果缓存。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// TTL 查询结果缓存过期时间。
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// KeyPrefix 查询结果缓存键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// EmbeddingEnabled 是否启用 Embedding 缓存。
	EmbeddingEnabled bool `json:"embedding-enabled" mapstructure:"embedding-enabled"`

	// EmbeddingTTL Embedding 缓存过期时间。
	EmbeddingTTL time.Duration `json:"embedding-ttl" mapstructure:"embedding-ttl"`

	// Redis Redis 连接配置。
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`
}

// RedisOptions Redis 配置。
type RedisOptions struct {
	// Host Redis 主机地址。
	Host string `json:"host" mapstructure:"host"`

	// Port Redis 端口。
	Port int `json:"port" mapstructure:"port"`

	// Password Redis 密码。
	Password string `json:"password" mapstructure:"password"`

	// Database Redis 数据库编号。
	Database int `json:"database" mapstructure:"database"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`

	// PoolSize 连接池大小。
	PoolSize int `json:"pool-size" mapstructure:"pool-size"`

	// MinIdleConns 最小空闲连接数。
	MinIdleConns int `json:"min-idle-conns" mapstructure:"min-idle-conns"`
}

// NewRedisOptions 创建默认 Redis 配置。
func NewRedisOptions() *RedisOptions {
	return &RedisOptions{
		Host:         "localhost",
		Port:         6379,
		Database:     0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
	}
}

// NewCacheOptions 创建默认缓存配置。
func NewCacheOptions() *CacheOptions {
	return &CacheOptions{
		Enabled:          true,
		TTL:              1 * time.Hour,
		KeyPrefix:        "rag:query:",
		EmbeddingEnabled: true,
		EmbeddingTTL:     24 * time.Hour,
		Redis:            NewRedisOptions(),
	}
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	embedding := NewProviderOptions()
	embedding.BaseURL = "http://embedding-service:8085"
	embedding.Timeout = 60 * time.Second

	generation := NewProviderOptions()
	generation.BaseURL = "http://llm-service:8086"

	return &Options{
		Server:     NewServerOptions(),
		Log:        logopt.DefaultLogOption(),
		Milvus:     milvus.DefaultOptions(),
		Embedding:  embedding,
		Generation: generation,
		RAG:        NewRAGOptions(),
		Cache:      NewCacheOptions(),
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP listen address")
	fs.DurationVar(&o.Server.ShutdownTimeout, "server.shutdown-timeout", o.Server.ShutdownTimeout, "Graceful shutdown timeout")

	o.Log.AddFlags(fs)

	fs.StringVar(&o.Milvus.Address, "milvus.address", o.Milvus.Address, "Milvus server address")
	fs.StringVar(&o.Milvus.Username, "milvus.username", o.Milvus.Username, "Milvus username")
	fs.StringVar(&o.Milvus.Password, "milvus.password", o.Milvus.Password, "Milvus password")
	fs.StringVar(&o.Milvus.Database, "milvus.database", o.Milvus.Database, "Milvus database name")
	fs.DurationVar(&o.Milvus.Timeout, "milvus.timeout", o.Milvus.Timeout, "Milvus connection timeout")

	o.addProviderFlags(fs, "embedding", o.Embedding)
	o.addProviderFlags(fs, "generation", o.Generation)
	o.addRAGFlags(fs)
	o.addCacheFlags(fs)
}

func (o *Options) addProviderFlags(fs *pflag.FlagSet, prefix string, opts *ProviderOptions) {
	fs.StringVar(&opts.Provider, prefix+".provider", opts.Provider, "Provider name (gateway, ollama)")
	fs.StringVar(&opts.BaseURL, prefix+".base-url", opts.BaseURL, "Provider API base URL")
	fs.StringVar(&opts.Model, prefix+".model", opts.Model, "Model name")
	fs.DurationVar(&opts.Timeout, prefix+".timeout", opts.Timeout, "Provider request timeout")
	fs.IntVar(&opts.MaxRetries, prefix+".max-retries", opts.MaxRetries, "Provider max retries")
}

func (o *Options) addRAGFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.RAG.Collection, "rag.collection", o.RAG.Collection, "Milvus collection name")
	fs.IntVar(&o.RAG.TopK, "rag.top-k", o.RAG.TopK, "Default number of results from similarity search")
	fs.Float64Var(&o.RAG.SimilarityThreshold, "rag.similarity-threshold", o.RAG.SimilarityThreshold, "Default minimum similarity score")
	fs.StringVar(&o.RAG.PromptTemplate, "rag.prompt-template", o.RAG.PromptTemplate, "Generation prompt template")
	fs.IntVar(&o.RAG.MaxContextTokens, "rag.max-context-tokens", o.RAG.MaxContextTokens, "Token budget for the prompt context")
	fs.Float64Var(&o.RAG.Temperature, "rag.temperature", o.RAG.Temperature, "Generation temperature")
	fs.IntVar(&o.RAG.MaxTokens, "rag.max-tokens", o.RAG.MaxTokens, "Maximum generated answer tokens")
}

func (o *Options) addCacheFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Cache.Enabled, "cache.enabled", o.Cache.Enabled, "Enable query result cache")
	fs.DurationVar(&o.Cache.TTL, "cache.ttl", o.Cache.TTL, "Result cache TTL duration")
	fs.StringVar(&o.Cache.KeyPrefix, "cache.key-prefix", o.Cache.KeyPrefix, "Result cache key prefix")
	fs.BoolVar(&o.Cache.EmbeddingEnabled, "cache.embedding-enabled", o.Cache.EmbeddingEnabled, "Enable embedding cache")
	fs.DurationVar(&o.Cache.EmbeddingTTL, "cache.embedding-ttl", o.Cache.EmbeddingTTL, "Embedding cache TTL duration")
	fs.StringVar(&o.Cache.Redis.Host, "cache.redis.host", o.Cache.Redis.Host, "Redis host")
	fs.IntVar(&o.Cache.Redis.Port, "cache.redis.port", o.Cache.Redis.Port, "Redis port")
	fs.StringVar(&o.Cache.Redis.Password, "cache.redis.password", o.Cache.Redis.Password, "Redis password")
	fs.IntVar(&o.Cache.Redis.Database, "cache.redis.database", o.Cache.Redis.Database, "Redis database number")
	fs.IntVar(&o.Cache.Redis.MaxRetries, "cache.redis.max-retries", o.Cache.Redis.MaxRetries, "Redis max retries")
	fs.IntVar(&o.Cache.Redis.PoolSize, "cache.redis.pool-size", o.Cache.Redis.PoolSize, "Redis connection pool size")
	fs.IntVar(&o.Cache.Redis.MinIdleConns, "cache.redis.min-idle-conns", o.Cache.Redis.MinIdleConns, "Redis minimum idle connections")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if o.Milvus.Address == "" {
		return fmt.Errorf("milvus.address is required")
	}
	if err := o.validateProvider(o.Embedding, "embedding"); err != nil {
		return err
	}
	if err := o.validateProvider(o.Generation, "generation"); err != nil {
		return err
	}
	if o.RAG.Collection == "" {
		return fmt.Errorf("rag.collection is required")
	}
	if o.RAG.TopK <= 0 {
		return fmt.Errorf("rag.top-k must be positive")
	}
	if o.RAG.SimilarityThreshold < 0 || o.RAG.SimilarityThreshold > 1 {
		return fmt.Errorf("rag.similarity-threshold must be in [0, 1]")
	}
	if o.RAG.MaxContextTokens <= 0 {
		return fmt.Errorf("rag.max-context-tokens must be positive")
	}
	return nil
}

func (o *Options) validateProvider(opts *ProviderOptions, prefix string) error {
	if opts.Provider == "" {
		return fmt.Errorf("%s.provider is required", prefix)
	}
	if opts.BaseURL == "" {
		return fmt.Errorf("%s.base-url is required", prefix)
	}
	if opts.Timeout <= 0 {
		return fmt.Errorf("%s.timeout must be positive", prefix)
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	if o.Cache.Redis == nil {
		o.Cache.Redis = NewRedisOptions()
	}
	return nil
}

// queryCacheConfig 将缓存选项转换为 biz 层配置。
func (o *Options) queryCacheConfig() *biz.QueryCacheConfig {
	return &biz.QueryCacheConfig{
		Enabled:   o.Cache.Enabled,
		TTL:       o.Cache.TTL,
		KeyPrefix: o.Cache.KeyPrefix,
	}
}
