package textutil_test

import (
	"strings"
	"testing"

	"github.com/kart-io/rag-query/internal/pkg/rag/textutil"
	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{"空字符串", "", 0},
		{"单字符至少一个 token", "a", 1},
		{"三字符一个 token", "abcdef", 2},
		{"整除", "abcdefghi", 3},
		{"中文按字符计数", "你好世界你好", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.EstimateTokens(tt.input))
		})
	}
}

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"已归一化", "what is rag", "what is rag"},
		{"首尾空白", "  what is rag  ", "what is rag"},
		{"连续空白压缩", "what   is\t\trag", "what is rag"},
		{"换行压缩", "what\nis\nrag", "what is rag"},
		{"全空白", "   \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.NormalizeQuestion(tt.input))
		})
	}
}

func TestHashQuestion(t *testing.T) {
	// 相同输入应产生相同输出
	hash1 := textutil.HashQuestion("test question")
	hash2 := textutil.HashQuestion("test question")
	assert.Equal(t, hash1, hash2)

	// 归一化后等价的问题产生相同的哈希
	hash3 := textutil.HashQuestion("  test   question ")
	assert.Equal(t, hash1, hash3)

	// 不同输入应产生不同输出
	hash4 := textutil.HashQuestion("different question")
	assert.NotEqual(t, hash1, hash4)

	// SHA256 十六进制为 64 字符
	assert.Len(t, hash1, 64)
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"短于限制", "hello", 10, "hello"},
		{"等于限制", "hello", 5, "hello"},
		{"超过限制", "hello world", 5, "hello"},
		{"中文字符", "你好世界", 2, "你好"},
		{"零长度", "hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, textutil.TruncateString(tt.input, tt.maxLen))
		})
	}
}

func TestTruncateToTokens(t *testing.T) {
	t.Run("不超限时原样返回", func(t *testing.T) {
		text := "short text"
		assert.Equal(t, text, textutil.TruncateToTokens(text, 100, nil))
	})

	t.Run("超限时截断到预算内", func(t *testing.T) {
		text := strings.Repeat("a", 300)
		result := textutil.TruncateToTokens(text, 10, nil)
		assert.LessOrEqual(t, textutil.EstimateTokens(result), 10)
		assert.NotEmpty(t, result)
		assert.True(t, strings.HasPrefix(text, result))
	})

	t.Run("零预算返回空", func(t *testing.T) {
		assert.Equal(t, "", textutil.TruncateToTokens("anything", 0, nil))
	})

	t.Run("自定义估算函数", func(t *testing.T) {
		// 每个字符算一个 token
		perRune := func(s string) int { return len([]rune(s)) }
		result := textutil.TruncateToTokens("hello world", 5, perRune)
		assert.Equal(t, "hello", result)
	})
}
