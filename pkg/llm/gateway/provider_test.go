package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/rag-query/pkg/llm"
)

func newEmbeddingTestClient(serverURL string) *EmbeddingClient {
	return NewEmbeddingClient(&EmbeddingConfig{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
}

func newGenerationTestClient(serverURL string) *GenerationClient {
	return NewGenerationClient(&GenerationConfig{
		BaseURL:    serverURL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
	})
}

func TestEmbeddingClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Embeddings: make([][]float32, len(req.Texts))}
		for i := range req.Texts {
			resp.Embeddings[i] = []float32{0.1, 0.2, 0.3}
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newEmbeddingTestClient(server.URL)

	embeddings, err := client.Embed(context.Background(), []string{"hello", "world"})
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, embeddings[0])
}

func TestEmbeddingClient_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// 返回的向量数量与请求不符
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1}}})
	}))
	defer server.Close()

	client := newEmbeddingTestClient(server.URL)

	_, err := client.Embed(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbeddingClient_EmbedSingle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.5, 0.6}}})
	}))
	defer server.Close()

	client := newEmbeddingTestClient(server.URL)

	embedding, err := client.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.6}, embedding)
}

func TestEmbeddingClient_EmptyInput(t *testing.T) {
	client := newEmbeddingTestClient("http://unused")

	embeddings, err := client.Embed(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, embeddings)
}

func TestGenerationClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, 0.2, req.Temperature)
		assert.Equal(t, 500, req.MaxTokens)

		_ = json.NewEncoder(w).Encode(generateResponse{Response: "generated answer"})
	}))
	defer server.Close()

	client := newGenerationTestClient(server.URL)

	answer, err := client.Generate(context.Background(), "prompt", &llm.GenerateOptions{Temperature: 0.2, MaxTokens: 500})
	require.NoError(t, err)
	assert.Equal(t, "generated answer", answer)
}

func TestGenerationClient_GenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newGenerationTestClient(server.URL)

	_, err := client.Generate(context.Background(), "prompt", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestGenerationClient_GenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		flusher, ok := w.(http.Flusher)
		require.True(t, ok)
		for _, part := range []string{"Hello ", "streaming ", "world"} {
			_, _ = w.Write([]byte(part))
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := newGenerationTestClient(server.URL)

	var parts []string
	err := client.GenerateStream(context.Background(), "prompt", nil, func(fragment string) error {
		parts = append(parts, fragment)
		return nil
	})
	require.NoError(t, err)

	// 分块边界不保证，但拼接后必须完整
	assert.Equal(t, "Hello streaming world", strings.Join(parts, ""))
}

func TestGenerationClient_CountTokens(t *testing.T) {
	client := newGenerationTestClient("http://unused")

	assert.Equal(t, 0, client.CountTokens(""))
	assert.Equal(t, 1, client.CountTokens("ab"))
	assert.Equal(t, 4, client.CountTokens("twelve chars"))
}

func TestHealthEndpoints(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer healthy.Close()

	assert.NoError(t, newGenerationTestClient(healthy.URL).HealthCheck(context.Background()))
	assert.NoError(t, newEmbeddingTestClient(healthy.URL).Ping(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	assert.Error(t, newGenerationTestClient(down.URL).HealthCheck(context.Background()))
}
