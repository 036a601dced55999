// Package router wires the RAG query service HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kart-io/rag-query/internal/ragquery/handler"
	"github.com/kart-io/rag-query/internal/ragquery/middleware"
)

// New builds the gin engine with all middleware and routes registered.
func New(queryHandler *handler.QueryHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.Recovery(),
	)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := engine.Group("/v1")
	{
		rag := v1.Group("/rag")
		{
			rag.POST("/query", queryHandler.Query)
			rag.POST("/query/stream", queryHandler.QueryStream)
			rag.GET("/health", queryHandler.Health)
			rag.GET("/stats", queryHandler.Stats)
			rag.POST("/cache/clear", queryHandler.ClearCache)
			rag.DELETE("/documents/:id", queryHandler.DeleteDocument)
		}
	}

	logger.Info("HTTP routes registered")
	return engine
}
