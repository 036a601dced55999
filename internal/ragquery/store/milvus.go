package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/rag-query/pkg/component/milvus"
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// outputFields 检索时需要返回的元数据字段。
var outputFields = []string{"content", "document_id", "document_name", "chunk_index", "page_number", "section"}

// Search 执行向量相似度搜索。
func (s *MilvusStore) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	hits, err := s.client.Search(ctx, collection, embedding, topK, outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	results := make([]*SearchResult, len(hits))
	for i, h := range hits {
		r := &SearchResult{
			ID:       h.ID,
			Distance: h.Distance,
		}
		if v, ok := h.Metadata["content"].(string); ok {
			r.Content = v
		}
		if v, ok := h.Metadata["document_id"].(string); ok {
			r.DocumentID = v
		}
		if v, ok := h.Metadata["document_name"].(string); ok {
			r.DocumentName = v
		}
		if v, ok := h.Metadata["chunk_index"].(int64); ok {
			r.ChunkIndex = v
		}
		if v, ok := h.Metadata["page_number"].(int64); ok {
			r.PageNumber = v
		}
		if v, ok := h.Metadata["section"].(string); ok {
			r.Section = v
		}
		results[i] = r
	}

	return results, nil
}

// DeleteByDocumentID 按 document_id 删除文档的所有块。
func (s *MilvusStore) DeleteByDocumentID(ctx context.Context, collection string, documentID string) (int64, error) {
	// document_id 来自外部请求，转义引号避免破坏过滤表达式
	escaped := strings.ReplaceAll(documentID, `"`, `\"`)
	expr := fmt.Sprintf(`document_id == "%s"`, escaped)

	count, err := s.client.DeleteByFilter(ctx, collection, expr)
	if err != nil {
		return 0, fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return count, nil
}

// GetStats 获取集合统计信息。
func (s *MilvusStore) GetStats(ctx context.Context, collection string) (int64, error) {
	return s.client.GetCollectionStats(ctx, collection)
}

// ListCollections 列出所有集合。
func (s *MilvusStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.client.ListCollections(ctx)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
