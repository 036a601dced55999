// Package textutil 提供 RAG 查询相关的文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// TokenEstimator 估算文本的 token 数量。
type TokenEstimator func(text string) int

// EstimateTokens 默认的 token 估算：约 3 个 Unicode 字符一个 token。
// 非空文本至少计 1 个 token。
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 3
	if n < 1 {
		return 1
	}
	return n
}

// NormalizeQuestion 归一化问题文本：去除首尾空白并将连续空白压缩为单个空格。
func NormalizeQuestion(question string) string {
	return strings.Join(strings.Fields(question), " ")
}

// HashQuestion 计算归一化问题的 SHA256 哈希（十六进制）。
func HashQuestion(question string) string {
	sum := sha256.Sum256([]byte(NormalizeQuestion(question)))
	return hex.EncodeToString(sum[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// TruncateToTokens 截断文本使其 token 估算不超过 maxTokens。
// estimate 为 nil 时使用 EstimateTokens。对前缀长度做二分查找，
// 要求估算函数对前缀长度单调。
func TruncateToTokens(text string, maxTokens int, estimate TokenEstimator) string {
	if estimate == nil {
		estimate = EstimateTokens
	}
	if maxTokens <= 0 {
		return ""
	}
	if estimate(text) <= maxTokens {
		return text
	}

	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if estimate(string(runes[:mid])) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return string(runes[:lo])
}
