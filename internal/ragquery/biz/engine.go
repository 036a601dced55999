package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/rag-query/internal/model"
	"github.com/kart-io/rag-query/internal/ragquery/metrics"
	"github.com/kart-io/rag-query/internal/ragquery/store"
	"github.com/kart-io/rag-query/pkg/llm"
)

// 面向用户的固定回答。查询引擎从不向调用方返回错误，
// 内部故障一律降级为这些回答。
const (
	// NoContextAnswer 检索不到任何相关上下文时的回答。
	NoContextAnswer = "I could not find any relevant information in the knowledge base to answer your question."
	// DegradedAnswer 生成失败但检索成功时的回答，来源照常返回。
	DegradedAnswer = "I found relevant information but was unable to generate an answer. Please try again later."
	// InternalErrorAnswer 内部异常兜底回答。
	InternalErrorAnswer = "An unexpected error occurred while processing your question. Please try again later."
)

// QueryRequest 一次 RAG 查询的参数。
type QueryRequest struct {
	// Question 用户问题。
	Question string
	// TopK 检索数量，<= 0 时使用配置默认值。
	TopK int
	// SimilarityThreshold 相似度阈值，超出 [0,1] 时使用配置默认值。
	SimilarityThreshold float64
	// History 调用方携带的会话历史。
	History []model.ConversationTurn
	// SkipCache 为 true 时本次查询不读缓存也不写缓存。
	SkipCache bool
}

// EngineConfig 查询引擎配置。
type EngineConfig struct {
	Retriever *RetrieverConfig
	Prompt    *PromptBuilderConfig
	Generate  *llm.GenerateOptions
}

// Engine 组合检索器、提示词构建器、生成供应商和结果缓存，
// 实现完整的查询流程。
type Engine struct {
	retriever     *Retriever
	prompts       *PromptBuilder
	genProvider   llm.GenerationProvider
	embedProvider llm.EmbeddingProvider
	cache         *QueryCache
	store         store.VectorStore
	collection    string
	genOpts       *llm.GenerateOptions
}

// NewEngine 创建查询引擎实例。
func NewEngine(
	vectorStore store.VectorStore,
	embedProvider llm.EmbeddingProvider,
	genProvider llm.GenerationProvider,
	cache *QueryCache,
	config *EngineConfig,
) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}
	retrieverConfig := config.Retriever
	if retrieverConfig == nil {
		retrieverConfig = DefaultRetrieverConfig()
	}
	genOpts := config.Generate
	if genOpts == nil {
		genOpts = llm.DefaultGenerateOptions()
	}

	return &Engine{
		retriever:     NewRetriever(vectorStore, embedProvider, retrieverConfig),
		prompts:       NewPromptBuilder(config.Prompt),
		genProvider:   genProvider,
		embedProvider: embedProvider,
		cache:         cache,
		store:         vectorStore,
		collection:    retrieverConfig.Collection,
		genOpts:       genOpts,
	}
}

// Query 执行一次同步 RAG 查询。该方法从不返回错误：
// 检索失败返回无上下文回答，生成失败返回带来源的降级回答，
// 内部 panic 被兜底为通用错误回答。
func (e *Engine) Query(ctx context.Context, req *QueryRequest) (result *model.QueryResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorw("panic during query processing", "panic", fmt.Sprintf("%v", rec))
			metrics.ErrorTotal.WithLabelValues(metrics.ErrTypePanic).Inc()
			metrics.QueryTotal.WithLabelValues(metrics.StatusError).Inc()
			result = &model.QueryResult{
				Answer:    InternalErrorAnswer,
				Sources:   []model.RetrievedChunk{},
				QueryTime: time.Since(start).Seconds(),
			}
		}
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	// 1. 缓存查找。命中时原样返回缓存结果
	if e.cache != nil && !req.SkipCache {
		cached, err := e.cache.Get(ctx, req.Question)
		if err == nil && cached != nil {
			metrics.CacheHitTotal.Inc()
			metrics.QueryTotal.WithLabelValues(metrics.StatusCacheHit).Inc()
			return cached
		}
		if err != nil {
			metrics.ErrorTotal.WithLabelValues(metrics.ErrTypeCache).Inc()
		}
		metrics.CacheMissTotal.Inc()
	}

	// 2. 检索上下文
	chunks := e.retriever.Retrieve(ctx, req.Question, req.TopK, req.SimilarityThreshold)

	// 3. 无上下文短路，不调用生成，不写缓存
	if len(chunks) == 0 {
		metrics.QueryTotal.WithLabelValues(metrics.StatusNoResult).Inc()
		return &model.QueryResult{
			Answer:    NoContextAnswer,
			Sources:   []model.RetrievedChunk{},
			QueryTime: time.Since(start).Seconds(),
		}
	}

	// 4. 构建提示词并生成答案
	prompt := e.prompts.Build(req.Question, chunks, req.History)

	genStart := time.Now()
	answer, err := e.genProvider.Generate(ctx, prompt, e.genOpts)
	metrics.GenerationDuration.Observe(time.Since(genStart).Seconds())

	if err != nil || answer == "" {
		// 生成失败或空回复都降级：来源照常返回，结果不进缓存
		reason := "empty response"
		if err != nil {
			reason = err.Error()
		}
		logger.Errorw("answer generation failed, returning degraded result",
			"reason", reason,
			"provider", e.genProvider.Name(),
			"sources", len(chunks),
		)
		metrics.ErrorTotal.WithLabelValues(metrics.ErrTypeGeneration).Inc()
		metrics.QueryTotal.WithLabelValues(metrics.StatusError).Inc()
		return &model.QueryResult{
			Answer:    DegradedAnswer,
			Sources:   chunks,
			QueryTime: time.Since(start).Seconds(),
		}
	}

	result = &model.QueryResult{
		Answer:    answer,
		Sources:   chunks,
		QueryTime: time.Since(start).Seconds(),
	}

	// 5. 写入缓存。写入失败不影响返回
	if e.cache != nil && !req.SkipCache {
		_ = e.cache.Set(ctx, req.Question, result)
	}

	metrics.QueryTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return result
}

// QueryStream 执行流式 RAG 查询，生成片段逐个传递给 emit。
// 流式结果从不写入缓存。返回的错误只会来自 emit 或调用方取消，
// 生成侧的失败被转换为一个终止错误片段。
func (e *Engine) QueryStream(ctx context.Context, req *QueryRequest, emit llm.StreamFunc) (err error) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorw("panic during streaming query", "panic", fmt.Sprintf("%v", rec))
			metrics.ErrorTotal.WithLabelValues(metrics.ErrTypePanic).Inc()
			metrics.QueryTotal.WithLabelValues(metrics.StatusError).Inc()
			err = emit(InternalErrorAnswer)
		}
		metrics.QueryDuration.Observe(time.Since(start).Seconds())
	}()

	chunks := e.retriever.Retrieve(ctx, req.Question, req.TopK, req.SimilarityThreshold)

	if len(chunks) == 0 {
		metrics.QueryTotal.WithLabelValues(metrics.StatusNoResult).Inc()
		return emit(NoContextAnswer)
	}

	prompt := e.prompts.Build(req.Question, chunks, req.History)

	genStart := time.Now()
	genErr := e.genProvider.GenerateStream(ctx, prompt, e.genOpts, emit)
	metrics.GenerationDuration.Observe(time.Since(genStart).Seconds())

	if genErr != nil {
		// 调用方断开或取消时直接结束，不再向下游写片段
		if ctx.Err() != nil || errors.Is(genErr, context.Canceled) {
			logger.Infow("streaming query cancelled by caller", "error", genErr.Error())
			return genErr
		}

		logger.Errorw("streaming generation failed",
			"error", genErr.Error(),
			"provider", e.genProvider.Name(),
		)
		metrics.ErrorTotal.WithLabelValues(metrics.ErrTypeGeneration).Inc()
		metrics.QueryTotal.WithLabelValues(metrics.StatusError).Inc()
		return emit("\n" + DegradedAnswer)
	}

	metrics.QueryTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return nil
}

// Retrieve 暴露底层检索，供只需要上下文的调用方使用。
func (e *Engine) Retrieve(ctx context.Context, question string, topK int, threshold float64) []model.RetrievedChunk {
	return e.retriever.Retrieve(ctx, question, topK, threshold)
}

// DeleteDocument 删除指定文档的所有向量块，返回删除数量。
func (e *Engine) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	return e.store.DeleteByDocumentID(ctx, e.collection, documentID)
}

// ClearCache 清空查询结果缓存。
func (e *Engine) ClearCache(ctx context.Context) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.Clear(ctx)
}

// GetStats 返回知识库与缓存的统计信息。
func (e *Engine) GetStats(ctx context.Context) (map[string]any, error) {
	count, err := e.store.GetStats(ctx, e.collection)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"collection":          e.collection,
		"chunk_count":         count,
		"embedding_provider":  e.embedProvider.Name(),
		"generation_provider": e.genProvider.Name(),
	}

	if e.cache != nil {
		if cacheStats, err := e.cache.GetStats(ctx); err == nil {
			stats["cache"] = cacheStats
		}
	}

	return stats, nil
}

// Health 汇总各依赖组件的健康状态。整体状态为 ok 或 degraded，
// 依赖故障不会让健康检查本身失败。
func (e *Engine) Health(ctx context.Context) map[string]any {
	healthy := true
	components := map[string]any{}

	if collections, err := e.store.ListCollections(ctx); err != nil {
		healthy = false
		components["vector_store"] = map[string]any{"status": "error", "error": err.Error()}
	} else {
		components["vector_store"] = map[string]any{"status": "ok", "collections": len(collections)}
	}

	if e.cache != nil {
		if err := e.cache.Ping(ctx); err != nil {
			healthy = false
			components["cache"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			components["cache"] = map[string]any{"status": "ok"}
		}
	}

	if err := e.genProvider.HealthCheck(ctx); err != nil {
		healthy = false
		components["generation"] = map[string]any{
			"status":   "error",
			"provider": e.genProvider.Name(),
			"error":    err.Error(),
		}
	} else {
		components["generation"] = map[string]any{
			"status":   "ok",
			"provider": e.genProvider.Name(),
		}
	}

	components["embedding"] = map[string]any{"provider": e.embedProvider.Name()}

	status := "ok"
	if !healthy {
		status = "degraded"
	}

	return map[string]any{
		"status":     status,
		"components": components,
	}
}
