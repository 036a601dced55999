// Package gateway 提供平台内部 embedding-service / llm-service 的供应商实现。
// 两个服务是独立部署的 HTTP 微服务，本包封装其调用协议。
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kart-io/rag-query/pkg/llm"
)

const (
	// EmbeddingProviderName embedding-service 供应商名称。
	EmbeddingProviderName = "gateway"
	// GenerationProviderName llm-service 供应商名称。
	GenerationProviderName = "gateway"
)

func init() {
	llm.RegisterEmbeddingProvider(EmbeddingProviderName, func(configMap map[string]any) (llm.EmbeddingProvider, error) {
		return NewEmbeddingClient(embeddingConfigFromMap(configMap)), nil
	})
	llm.RegisterGenerationProvider(GenerationProviderName, func(configMap map[string]any) (llm.GenerationProvider, error) {
		return NewGenerationClient(generationConfigFromMap(configMap)), nil
	})
}

// EmbeddingConfig embedding-service 客户端配置。
type EmbeddingConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultEmbeddingConfig 返回默认配置。
func DefaultEmbeddingConfig() *EmbeddingConfig {
	return &EmbeddingConfig{
		BaseURL:    "http://embedding-service:8085",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

func embeddingConfigFromMap(configMap map[string]any) *EmbeddingConfig {
	cfg := DefaultEmbeddingConfig()
	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v > 0 {
		cfg.MaxRetries = v
	}
	return cfg
}

// EmbeddingClient embedding-service 的 HTTP 客户端。
type EmbeddingClient struct {
	config     *EmbeddingConfig
	httpClient *http.Client
}

// NewEmbeddingClient 创建 embedding-service 客户端。
func NewEmbeddingClient(cfg *EmbeddingConfig) *EmbeddingClient {
	if cfg == nil {
		cfg = DefaultEmbeddingConfig()
	}
	return &EmbeddingClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name 返回供应商名称。
func (c *EmbeddingClient) Name() string {
	return EmbeddingProviderName
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed 为多个文本生成向量嵌入。
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	resp, err := doRequestWithRetry(ctx, c.httpClient, c.config.BaseURL+"/api/embeddings", body, c.config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("请求失败，状态码 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("向量数量不匹配: 请求 %d 条，返回 %d 条", len(texts), len(embedResp.Embeddings))
	}

	return embedResp.Embeddings, nil
}

// EmbedSingle 为单个文本生成向量嵌入。
func (c *EmbeddingClient) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("未返回向量嵌入")
	}
	return embeddings[0], nil
}

// Ping 检查 embedding-service 是否可用。
func (c *EmbeddingClient) Ping(ctx context.Context) error {
	return pingHealth(ctx, c.httpClient, c.config.BaseURL)
}

// GenerationConfig llm-service 客户端配置。
type GenerationConfig struct {
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultGenerationConfig 返回默认配置。
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		BaseURL:    "http://llm-service:8086",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

func generationConfigFromMap(configMap map[string]any) *GenerationConfig {
	cfg := DefaultGenerationConfig()
	if v, ok := configMap["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := configMap["timeout"].(time.Duration); ok && v > 0 {
		cfg.Timeout = v
	}
	if v, ok := configMap["max_retries"].(int); ok && v > 0 {
		cfg.MaxRetries = v
	}
	return cfg
}

// GenerationClient llm-service 的 HTTP 客户端。
type GenerationClient struct {
	config     *GenerationConfig
	httpClient *http.Client
}

// NewGenerationClient 创建 llm-service 客户端。
func NewGenerationClient(cfg *GenerationConfig) *GenerationClient {
	if cfg == nil {
		cfg = DefaultGenerationConfig()
	}
	return &GenerationClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name 返回供应商名称。
func (c *GenerationClient) Name() string {
	return GenerationProviderName
}

type generateRequest struct {
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Stream      bool    `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (c *GenerationClient) buildRequest(prompt string, opts *llm.GenerateOptions, stream bool) generateRequest {
	if opts == nil {
		opts = llm.DefaultGenerateOptions()
	}
	return generateRequest{
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

// Generate 根据提示生成文本（单次返回）。
func (c *GenerationClient) Generate(ctx context.Context, prompt string, opts *llm.GenerateOptions) (string, error) {
	body, err := json.Marshal(c.buildRequest(prompt, opts, false))
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	resp, err := doRequestWithRetry(ctx, c.httpClient, c.config.BaseURL+"/api/generate", body, c.config.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("请求失败，状态码 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("解析响应失败: %w", err)
	}

	return genResp.Response, nil
}

// GenerateStream 流式生成文本。llm-service 以 chunked 纯文本返回，
// 每个读取到的数据块作为一个片段传递给 fn。
func (c *GenerationClient) GenerateStream(ctx context.Context, prompt string, opts *llm.GenerateOptions, fn llm.StreamFunc) error {
	body, err := json.Marshal(c.buildRequest(prompt, opts, true))
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// 流式请求不重试，半途失败重试会产生重复片段
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("请求失败，状态码 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	reader := bufio.NewReader(resp.Body)
	buf := make([]byte, 4*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := reader.Read(buf)
		if n > 0 {
			if fnErr := fn(string(buf[:n])); fnErr != nil {
				return fnErr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("读取流式响应失败: %w", err)
		}
	}
}

// CountTokens 粗略估算 token 数量（约 3 字符一个 token）。
func (c *GenerationClient) CountTokens(text string) int {
	n := len([]rune(text)) / 3
	if n < 1 && text != "" {
		return 1
	}
	return n
}

// HealthCheck 检查 llm-service 是否可用。
func (c *GenerationClient) HealthCheck(ctx context.Context) error {
	return pingHealth(ctx, c.httpClient, c.config.BaseURL)
}

// pingHealth 请求服务的 /health 端点。
func pingHealth(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("服务不可用，状态码 %d", resp.StatusCode)
	}

	return nil
}

// doRequestWithRetry 带重试的 POST 请求执行。每次尝试重建请求体。
func doRequestWithRetry(ctx context.Context, client *http.Client, url string, body []byte, maxRetries int) (*http.Response, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("创建请求失败: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if i < maxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * 500 * time.Millisecond):
			}
		}
	}
	return nil, lastErr
}

var (
	_ llm.EmbeddingProvider  = (*EmbeddingClient)(nil)
	_ llm.GenerationProvider = (*GenerationClient)(nil)
)
