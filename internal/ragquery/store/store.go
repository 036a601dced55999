package store

import (
	"context"
)

// SearchResult 表示一条向量检索命中。Distance 为索引返回的原始距离
// （L2，越小越相似），不做任何转换，相似度换算由上层负责。
type SearchResult struct {
	// ID 文档块实体 ID。
	ID int64
	// Content 文档块内容。
	Content string
	// Distance 原始距离。
	Distance float32
	// DocumentID 所属文档 ID。
	DocumentID string
	// DocumentName 文档名称。
	DocumentName string
	// ChunkIndex 块在文档中的序号。
	ChunkIndex int64
	// PageNumber 页码，<= 0 表示未知。
	PageNumber int64
	// Section 所属章节，可为空。
	Section string
}

// VectorStore 定义向量存储接口。写入侧由索引服务负责，本服务只做
// 检索和按文档删除。
type VectorStore interface {
	// Search 向量相似度搜索，返回至多 topK 条命中。
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error)

	// DeleteByDocumentID 删除指定文档的所有块，返回删除数量。
	DeleteByDocumentID(ctx context.Context, collection string, documentID string) (int64, error)

	// GetStats 获取集合的实体数量。
	GetStats(ctx context.Context, collection string) (int64, error)

	// ListCollections 列出所有集合。
	ListCollections(ctx context.Context) ([]string, error)

	// Close 关闭连接。
	Close(ctx context.Context) error
}
