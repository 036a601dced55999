// Package model provides shared data models for the RAG query service.
package model

// RetrievedChunk is one context candidate produced by the retriever for a
// single query. Chunks are immutable once built and ordered by relevance.
type RetrievedChunk struct {
	ChunkText       string  `json:"chunk_text"`
	SimilarityScore float64 `json:"similarity_score"`
	DocumentID      string  `json:"document_id"`
	DocumentName    string  `json:"document_name"`
	ChunkIndex      int     `json:"chunk_index"`
	PageNumber      *int    `json:"page_number,omitempty"`
	Section         string  `json:"section,omitempty"`
}

// QueryResult is the outcome of one RAG query.
type QueryResult struct {
	Answer string `json:"answer"`
	// Sources are sorted by similarity score, descending.
	Sources []RetrievedChunk `json:"sources"`
	// QueryTime is the total query duration in seconds.
	QueryTime float64 `json:"query_time"`
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one turn of caller-supplied session history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
