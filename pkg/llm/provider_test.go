package llm

import (
	"context"
	"testing"
)

// mockEmbedder 模拟 Embedding 供应商实现，用于测试。
type mockEmbedder struct {
	name string
}

func (m *mockEmbedder) Name() string {
	return m.name
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3}
	}
	return result, nil
}

func (m *mockEmbedder) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

// mockGenerator 模拟生成供应商实现，用于测试。
type mockGenerator struct {
	name string
}

func (m *mockGenerator) Name() string {
	return m.name
}

func (m *mockGenerator) Generate(_ context.Context, _ string, _ *GenerateOptions) (string, error) {
	return "mock generated text", nil
}

func (m *mockGenerator) GenerateStream(_ context.Context, _ string, _ *GenerateOptions, fn StreamFunc) error {
	return fn("mock fragment")
}

func (m *mockGenerator) CountTokens(text string) int {
	return len([]rune(text)) / 3
}

func (m *mockGenerator) HealthCheck(_ context.Context) error {
	return nil
}

func TestRegisterAndNewEmbeddingProvider(t *testing.T) {
	// 注册测试供应商
	RegisterEmbeddingProvider("test-embed", func(config map[string]any) (EmbeddingProvider, error) {
		name := "test-embed"
		if n, ok := config["name"].(string); ok {
			name = n
		}
		return &mockEmbedder{name: name}, nil
	})

	provider, err := NewEmbeddingProvider("test-embed", map[string]any{"name": "custom-name"})
	if err != nil {
		t.Fatalf("NewEmbeddingProvider failed: %v", err)
	}

	if provider.Name() != "custom-name" {
		t.Errorf("expected name 'custom-name', got '%s'", provider.Name())
	}
}

func TestRegisterAndNewGenerationProvider(t *testing.T) {
	RegisterGenerationProvider("test-gen", func(_ map[string]any) (GenerationProvider, error) {
		return &mockGenerator{name: "test-gen"}, nil
	})

	provider, err := NewGenerationProvider("test-gen", nil)
	if err != nil {
		t.Fatalf("NewGenerationProvider failed: %v", err)
	}

	if provider.Name() != "test-gen" {
		t.Errorf("expected name 'test-gen', got '%s'", provider.Name())
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewEmbeddingProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown embedding provider")
	}

	if _, err := NewGenerationProvider("unknown-provider", nil); err == nil {
		t.Error("expected error for unknown generation provider")
	}
}

func TestListProviders(t *testing.T) {
	RegisterEmbeddingProvider("list-embed", func(_ map[string]any) (EmbeddingProvider, error) {
		return &mockEmbedder{name: "list-embed"}, nil
	})
	RegisterGenerationProvider("list-gen", func(_ map[string]any) (GenerationProvider, error) {
		return &mockGenerator{name: "list-gen"}, nil
	})

	providers := ListProviders()
	if len(providers) == 0 {
		t.Fatal("expected at least one registered provider")
	}

	found := map[string]bool{}
	for _, p := range providers {
		found[p] = true
	}
	if !found["list-embed"] {
		t.Error("expected 'list-embed' in provider list")
	}
	if !found["list-gen"] {
		t.Error("expected 'list-gen' in provider list")
	}
}

func TestDefaultGenerateOptions(t *testing.T) {
	opts := DefaultGenerateOptions()
	if opts.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", opts.Temperature)
	}
	if opts.MaxTokens != 1000 {
		t.Errorf("expected max tokens 1000, got %d", opts.MaxTokens)
	}
}

func TestMockGeneratorStream(t *testing.T) {
	provider := &mockGenerator{name: "test"}

	var fragments []string
	err := provider.GenerateStream(context.Background(), "prompt", nil, func(fragment string) error {
		fragments = append(fragments, fragment)
		return nil
	})
	if err != nil {
		t.Fatalf("GenerateStream failed: %v", err)
	}

	if len(fragments) != 1 || fragments[0] != "mock fragment" {
		t.Errorf("unexpected fragments: %v", fragments)
	}
}
