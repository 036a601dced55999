package biz

import (
	"fmt"
	"strings"

	"github.com/kart-io/rag-query/internal/model"
	"github.com/kart-io/rag-query/internal/pkg/rag/textutil"
)

// DefaultPromptTemplate 默认提示词模板。{{context}} 和 {{question}}
// 为固定占位符。
const DefaultPromptTemplate = `You are a helpful assistant. Answer the question based on the provided context. If the context does not contain enough information, say so instead of guessing.

Context:
{{context}}

Question: {{question}}

Answer:`

// TruncationNotice 上下文被截断时追加的提示。
const TruncationNotice = "\n\n[Note: some context was omitted due to length limits]"

// maxHistoryTurns 提示词中保留的会话历史轮数。
const maxHistoryTurns = 5

// PromptBuilderConfig 提示词构建器配置。
type PromptBuilderConfig struct {
	// Template 提示词模板，空字符串时使用 DefaultPromptTemplate。
	Template string
	// MaxContextTokens 上下文部分的 token 预算。
	MaxContextTokens int
	// Estimate token 估算函数，nil 时使用 textutil.EstimateTokens。
	Estimate textutil.TokenEstimator
}

// DefaultPromptBuilderConfig 返回默认配置。
func DefaultPromptBuilderConfig() *PromptBuilderConfig {
	return &PromptBuilderConfig{
		Template:         DefaultPromptTemplate,
		MaxContextTokens: 2000,
	}
}

// PromptBuilder 将问题、上下文块和会话历史组装为生成提示词。
// 上下文块按传入顺序编号，不重新排序。超出 token 预算时只截断
// 上下文部分，问题始终完整保留。
type PromptBuilder struct {
	template string
	budget   int
	estimate textutil.TokenEstimator
}

// NewPromptBuilder 创建提示词构建器。
func NewPromptBuilder(config *PromptBuilderConfig) *PromptBuilder {
	if config == nil {
		config = DefaultPromptBuilderConfig()
	}
	template := config.Template
	if template == "" {
		template = DefaultPromptTemplate
	}
	estimate := config.Estimate
	if estimate == nil {
		estimate = textutil.EstimateTokens
	}
	budget := config.MaxContextTokens
	if budget <= 0 {
		budget = DefaultPromptBuilderConfig().MaxContextTokens
	}
	return &PromptBuilder{
		template: template,
		budget:   budget,
		estimate: estimate,
	}
}

// Build 组装提示词。
func (b *PromptBuilder) Build(question string, chunks []model.RetrievedChunk, history []model.ConversationTurn) string {
	contextText := b.buildContext(chunks)

	prompt := strings.ReplaceAll(b.template, "{{context}}", contextText)
	prompt = strings.ReplaceAll(prompt, "{{question}}", question)

	if historyBlock := buildHistory(history); historyBlock != "" {
		prompt = historyBlock + "\n\n" + prompt
	}

	return prompt
}

// buildContext 将上下文块编号拼接，必要时截断到 token 预算内。
func (b *PromptBuilder) buildContext(chunks []model.RetrievedChunk) string {
	if len(chunks) == 0 {
		return ""
	}

	blocks := make([]string, len(chunks))
	for i, chunk := range chunks {
		blocks[i] = fmt.Sprintf("[Document %d] (source: %s, similarity: %.2f)\n%s",
			i+1, chunk.DocumentName, chunk.SimilarityScore, chunk.ChunkText)
	}
	contextText := strings.Join(blocks, "\n\n")

	if b.estimate(contextText) <= b.budget {
		return contextText
	}

	return textutil.TruncateToTokens(contextText, b.budget, b.estimate) + TruncationNotice
}

// buildHistory 将最近的会话历史渲染为 "role: content" 行。
func buildHistory(history []model.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	lines := make([]string, 0, len(history)+1)
	lines = append(lines, "Previous conversation:")
	for _, turn := range history {
		lines = append(lines, turn.Role+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}
