package ragquery

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/rag-query/internal/ragquery/biz"
	"github.com/kart-io/rag-query/internal/ragquery/handler"
	"github.com/kart-io/rag-query/internal/ragquery/router"
	"github.com/kart-io/rag-query/internal/ragquery/store"
	"github.com/kart-io/rag-query/pkg/component/milvus"
	"github.com/kart-io/rag-query/pkg/llm"

	// 导入供应商以自动注册
	_ "github.com/kart-io/rag-query/pkg/llm/gateway"
	_ "github.com/kart-io/rag-query/pkg/llm/ollama"
)

// Name is the name of the application.
const Name = "rag-query"

// Version is set at build time via -ldflags.
var Version = "dev"

// Server represents the RAG query server and its owned resources.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	milvusClose     func()
	redisClose      func()
}

// NewServer builds the full service from completed options: logger,
// Milvus store, Redis caches, providers, engine, handlers and router.
func NewServer(_ context.Context, opts *Options) (*Server, error) {
	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", Name)
	opts.Log.AddInitialField("service.version", Version)
	log, err := logger.New(opts.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.SetGlobal(log)
	logger.Info("Starting RAG query service...")

	// 2. 初始化 Milvus 客户端与存储层
	milvusClient, err := milvus.New(opts.Milvus)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize milvus: %w", err)
	}
	vectorStore := store.NewMilvusStore(milvusClient)
	logger.Infow("Vector store initialized", "address", opts.Milvus.Address, "collection", opts.RAG.Collection)

	// 3. 初始化 Redis 客户端（查询缓存与 Embedding 缓存共用）
	var redisClient *goredis.Client
	var redisClose func()
	if opts.Cache.Enabled || opts.Cache.EmbeddingEnabled {
		redisOpts := opts.Cache.Redis
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         fmt.Sprintf("%s:%d", redisOpts.Host, redisOpts.Port),
			Password:     redisOpts.Password,
			DB:           redisOpts.Database,
			MaxRetries:   redisOpts.MaxRetries,
			PoolSize:     redisOpts.PoolSize,
			MinIdleConns: redisOpts.MinIdleConns,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnw("failed to connect to redis, caching disabled", "error", err.Error())
			_ = redisClient.Close()
			redisClient = nil
		} else {
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Redis initialized", "host", redisOpts.Host, "port", redisOpts.Port)
		}
	}

	var queryCache *biz.QueryCache
	if opts.Cache.Enabled && redisClient != nil {
		queryCache = biz.NewQueryCache(redisClient, opts.queryCacheConfig())
		logger.Infow("Query cache initialized", "ttl", opts.Cache.TTL, "prefix", opts.Cache.KeyPrefix)
	}

	// 4. 初始化供应商
	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding provider: %w", err)
	}
	if opts.Cache.EmbeddingEnabled && redisClient != nil {
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisClient, &llm.EmbeddingCacheConfig{
			Enabled:   true,
			TTL:       opts.Cache.EmbeddingTTL,
			KeyPrefix: "emb:",
		})
	}
	logger.Infow("Embedding provider initialized", "provider", embedProvider.Name())

	genProvider, err := llm.NewGenerationProvider(opts.Generation.Provider, opts.Generation.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation provider: %w", err)
	}
	logger.Infow("Generation provider initialized", "provider", genProvider.Name())

	// 5. 初始化查询引擎
	engine := biz.NewEngine(vectorStore, embedProvider, genProvider, queryCache, &biz.EngineConfig{
		Retriever: &biz.RetrieverConfig{
			Collection:       opts.RAG.Collection,
			DefaultTopK:      opts.RAG.TopK,
			DefaultThreshold: opts.RAG.SimilarityThreshold,
		},
		Prompt: &biz.PromptBuilderConfig{
			Template:         opts.RAG.PromptTemplate,
			MaxContextTokens: opts.RAG.MaxContextTokens,
		},
		Generate: &llm.GenerateOptions{
			Temperature: opts.RAG.Temperature,
			MaxTokens:   opts.RAG.MaxTokens,
		},
	})

	// 6. 初始化 Handler 与路由
	queryHandler := handler.NewQueryHandler(engine)
	ginEngine := router.New(queryHandler)

	httpServer := &http.Server{
		Addr:    opts.Server.Addr,
		Handler: ginEngine,
	}

	logger.Infow("RAG query service is ready", "addr", opts.Server.Addr)
	return &Server{
		httpServer:      httpServer,
		shutdownTimeout: opts.Server.ShutdownTimeout,
		milvusClose:     func() { _ = milvusClient.Close(context.Background()) },
		redisClose:      redisClose,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully and releases clients.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.milvusClose != nil {
			s.milvusClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down RAG query service...")
	return s.Shutdown()
}

// Shutdown stops the HTTP server within the configured timeout.
func (s *Server) Shutdown() error {
	timeout := s.shutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("RAG query service stopped")
	return nil
}
