package biz

import (
	"context"
	"sort"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/rag-query/internal/model"
	"github.com/kart-io/rag-query/internal/ragquery/metrics"
	"github.com/kart-io/rag-query/internal/ragquery/store"
	"github.com/kart-io/rag-query/pkg/llm"
)

// RetrieverConfig 检索器配置。
type RetrieverConfig struct {
	// Collection 集合名称。
	Collection string
	// DefaultTopK 未指定时的检索数量。
	DefaultTopK int
	// DefaultThreshold 未指定时的相似度阈值。
	DefaultThreshold float64
}

// DefaultRetrieverConfig 返回默认检索器配置。
func DefaultRetrieverConfig() *RetrieverConfig {
	return &RetrieverConfig{
		Collection:       "documents",
		DefaultTopK:      5,
		DefaultThreshold: 0.7,
	}
}

// Retriever 负责上下文检索：向量化问题、相似度搜索、
// 距离转换、阈值过滤和排序。检索失败不向上传播，返回空结果。
type Retriever struct {
	store         store.VectorStore
	embedProvider llm.EmbeddingProvider
	config        *RetrieverConfig
}

// NewRetriever 创建检索器实例。
func NewRetriever(vectorStore store.VectorStore, embedProvider llm.EmbeddingProvider, config *RetrieverConfig) *Retriever {
	if config == nil {
		config = DefaultRetrieverConfig()
	}
	return &Retriever{
		store:         vectorStore,
		embedProvider: embedProvider,
		config:        config,
	}
}

// Retrieve 检索与问题相关的上下文块。
// topK <= 0 或 threshold 超出 [0,1] 时使用配置默认值。
// 任何阶段失败都记录日志并返回空切片，调用方无需处理错误。
func (r *Retriever) Retrieve(ctx context.Context, question string, topK int, threshold float64) []model.RetrievedChunk {
	start := time.Now()
	defer func() {
		metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	}()

	if topK <= 0 {
		topK = r.config.DefaultTopK
	}
	if threshold < 0 || threshold > 1 {
		threshold = r.config.DefaultThreshold
	}

	embedding, err := r.embedProvider.EmbedSingle(ctx, question)
	if err != nil {
		logger.Errorw("failed to embed question, returning no context",
			"error", err.Error(),
			"question_length", len(question),
		)
		metrics.ErrorTotal.WithLabelValues(metrics.ErrTypeEmbedding).Inc()
		metrics.RetrievalResults.Observe(0)
		return []model.RetrievedChunk{}
	}

	hits, err := r.store.Search(ctx, r.config.Collection, embedding, topK)
	if err != nil {
		logger.Errorw("vector search failed, returning no context",
			"error", err.Error(),
			"collection", r.config.Collection,
			"top_k", topK,
		)
		metrics.ErrorTotal.WithLabelValues(metrics.ErrTypeSearch).Inc()
		metrics.RetrievalResults.Observe(0)
		return []model.RetrievedChunk{}
	}

	chunks := make([]model.RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		// L2 距离转相似度，值域 (0, 1]，距离越小越相似
		score := 1.0 / (1.0 + float64(hit.Distance))
		if score < threshold {
			continue
		}
		chunks = append(chunks, mapChunk(hit, score))
	}

	// 存储层按距离升序返回，稳定排序保证同分结果保持原有顺序
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].SimilarityScore > chunks[j].SimilarityScore
	})

	logger.Infow("retrieval completed",
		"collection", r.config.Collection,
		"candidates", len(hits),
		"retained", len(chunks),
		"top_k", topK,
		"threshold", threshold,
	)
	metrics.RetrievalResults.Observe(float64(len(chunks)))

	return chunks
}

// mapChunk 将存储层命中映射为上下文块，缺失的元数据使用默认值。
func mapChunk(hit *store.SearchResult, score float64) model.RetrievedChunk {
	chunk := model.RetrievedChunk{
		ChunkText:       hit.Content,
		SimilarityScore: score,
		DocumentID:      hit.DocumentID,
		DocumentName:    hit.DocumentName,
		Section:         hit.Section,
	}

	if chunk.DocumentID == "" {
		chunk.DocumentID = "unknown"
	}
	if chunk.DocumentName == "" {
		chunk.DocumentName = "unknown"
	}
	if hit.ChunkIndex > 0 {
		chunk.ChunkIndex = int(hit.ChunkIndex)
	}
	if hit.PageNumber > 0 {
		page := int(hit.PageNumber)
		chunk.PageNumber = &page
	}

	return chunk
}
