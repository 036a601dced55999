// Package handler provides HTTP handlers for the RAG query service.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/rag-query/internal/model"
	"github.com/kart-io/rag-query/internal/ragquery/biz"
)

// queryTimeout bounds synchronous query processing.
const queryTimeout = 60 * time.Second

// QueryHandler handles RAG query HTTP requests.
type QueryHandler struct {
	engine *biz.Engine
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(engine *biz.Engine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

// SuccessResponse is a standard success envelope for maintenance endpoints.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// historyTurn is one caller-supplied conversation turn.
type historyTurn struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

// queryRequest is the body of POST /v1/rag/query and /v1/rag/query/stream.
type queryRequest struct {
	Question            string        `json:"question" binding:"required"`
	TopK                int           `json:"top_k"`
	SimilarityThreshold *float64      `json:"similarity_threshold"`
	Stream              bool          `json:"stream"`
	UseCache            *bool         `json:"use_cache"`
	History             []historyTurn `json:"session_history"`
}

// toEngineRequest converts the HTTP payload to an engine request.
// Absent similarity_threshold is passed as -1 so the engine applies its
// default; absent use_cache means caching stays enabled.
func (r *queryRequest) toEngineRequest() *biz.QueryRequest {
	threshold := -1.0
	if r.SimilarityThreshold != nil {
		threshold = *r.SimilarityThreshold
	}

	history := make([]model.ConversationTurn, len(r.History))
	for i, turn := range r.History {
		history[i] = model.ConversationTurn{Role: turn.Role, Content: turn.Content}
	}

	return &biz.QueryRequest{
		Question:            r.Question,
		TopK:                r.TopK,
		SimilarityThreshold: threshold,
		History:             history,
		SkipCache:           r.UseCache != nil && !*r.UseCache,
	}
}

// Query performs a synchronous RAG query and returns the result directly.
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	if req.Stream {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    400,
			Message: "streaming is not supported on this endpoint, use /v1/rag/query/stream",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	result := h.engine.Query(ctx, req.toEngineRequest())
	c.JSON(http.StatusOK, result)
}

// streamChunk is one SSE payload for the streaming endpoint.
type streamChunk struct {
	Content string `json:"content"`
}

// QueryStream performs a streaming RAG query over server-sent events.
// Each generation fragment is one "data:" event; the stream terminates
// with a "data: [DONE]" marker.
func (h *QueryHandler) QueryStream(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	emit := func(fragment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		payload, err := json.Marshal(streamChunk{Content: fragment})
		if err != nil {
			return err
		}
		if _, err := c.Writer.WriteString("data: " + string(payload) + "\n\n"); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := h.engine.QueryStream(ctx, req.toEngineRequest(), emit); err != nil {
		// 客户端断开后无法再写任何内容，仅记录
		logger.Infow("streaming response ended early", "error", err.Error())
		return
	}

	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}

// Health reports the health of the service and its dependencies.
func (h *QueryHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, h.engine.Health(ctx))
}

// Stats returns knowledge base and cache statistics.
func (h *QueryHandler) Stats(c *gin.Context) {
	stats, err := h.engine.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ClearCache removes all cached query results.
func (h *QueryHandler) ClearCache(c *gin.Context) {
	deleted, err := h.engine.ClearCache(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "cache cleared",
		Data:    gin.H{"deleted_count": deleted},
	})
}

// DeleteDocument removes all vector chunks belonging to a document.
func (h *QueryHandler) DeleteDocument(c *gin.Context) {
	documentID := c.Param("id")
	if documentID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: "document id is required"})
		return
	}

	deleted, err := h.engine.DeleteDocument(c.Request.Context(), documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Code:    0,
		Message: "document deleted",
		Data:    gin.H{"document_id": documentID, "deleted_chunks": deleted},
	})
}
