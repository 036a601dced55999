package biz

import (
	"context"
	"errors"

	"github.com/kart-io/rag-query/internal/ragquery/store"
	"github.com/kart-io/rag-query/pkg/llm"
)

// mockEmbeddingProvider 测试用 Embedding 供应商。
type mockEmbeddingProvider struct {
	embedding []float32
	err       error
	calls     int
}

func (m *mockEmbeddingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = m.embedding
	}
	return out, nil
}

func (m *mockEmbeddingProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.embedding, nil
}

func (m *mockEmbeddingProvider) Name() string { return "mock-embed" }

// mockVectorStore 测试用向量存储。
type mockVectorStore struct {
	results        []*store.SearchResult
	searchErr      error
	searchCalls    int
	lastCollection string
	lastTopK       int

	deleted   int64
	deleteErr error

	statsCount int64
	statsErr   error

	collections []string
	listErr     error
}

func (m *mockVectorStore) Search(_ context.Context, collection string, _ []float32, topK int) ([]*store.SearchResult, error) {
	m.searchCalls++
	m.lastCollection = collection
	m.lastTopK = topK
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results, nil
}

func (m *mockVectorStore) DeleteByDocumentID(_ context.Context, _ string, _ string) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	return m.deleted, nil
}

func (m *mockVectorStore) GetStats(_ context.Context, _ string) (int64, error) {
	if m.statsErr != nil {
		return 0, m.statsErr
	}
	return m.statsCount, nil
}

func (m *mockVectorStore) ListCollections(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.collections, nil
}

func (m *mockVectorStore) Close(_ context.Context) error { return nil }

var _ store.VectorStore = (*mockVectorStore)(nil)

// mockGenerationProvider 测试用生成供应商。
type mockGenerationProvider struct {
	answer        string
	generateErr   error
	fragments     []string
	streamErr     error
	healthErr     error
	generateCalls int
	streamCalls   int
	lastPrompt    string
}

func (m *mockGenerationProvider) Generate(_ context.Context, prompt string, _ *llm.GenerateOptions) (string, error) {
	m.generateCalls++
	m.lastPrompt = prompt
	if m.generateErr != nil {
		return "", m.generateErr
	}
	return m.answer, nil
}

func (m *mockGenerationProvider) GenerateStream(_ context.Context, prompt string, _ *llm.GenerateOptions, fn llm.StreamFunc) error {
	m.streamCalls++
	m.lastPrompt = prompt
	for _, fragment := range m.fragments {
		if err := fn(fragment); err != nil {
			return err
		}
	}
	return m.streamErr
}

func (m *mockGenerationProvider) CountTokens(text string) int { return len([]rune(text)) / 3 }

func (m *mockGenerationProvider) HealthCheck(_ context.Context) error { return m.healthErr }

func (m *mockGenerationProvider) Name() string { return "mock-gen" }

var (
	_ llm.EmbeddingProvider  = (*mockEmbeddingProvider)(nil)
	_ llm.GenerationProvider = (*mockGenerationProvider)(nil)

	errMockFailure = errors.New("mock failure")
)
