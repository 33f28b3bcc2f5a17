// Package model provides data models for the document QA service.
package model

import (
	"time"
)

// Document statuses.
const (
	StatusPending  = "pending"
	StatusIndexed  = "indexed"
	StatusFailed   = "failed"
	StatusDeleting = "deleting"
)

// Document represents an uploaded document in the knowledge base.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	Source     string    `json:"source"` // Stored file path
	ChunkNum   int       `json:"chunk_num"`
	Status     string    `json:"status"` // pending, indexed, failed
	UploadDate time.Time `json:"upload_date"`
}

// Chunk represents a text chunk with its embedding.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	Position   int       `json:"position"` // Chunk index within the document
	Content    string    `json:"content"`
	Source     string    `json:"source"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// SearchResult is a chunk returned from similarity search.
type SearchResult struct {
	Chunk
	Score float32 `json:"score"`
}

// QueryResult represents an answer with its supporting sources.
type QueryResult struct {
	Answer      string        `json:"answer"`
	Sources     []ChunkSource `json:"sources"`
	DocumentIDs []string      `json:"document_ids,omitempty"`
}

// ChunkSource represents source information for a retrieved chunk.
// Content is truncated for transport, see biz.
type ChunkSource struct {
	DocumentID string  `json:"document_id"`
	Position   int     `json:"position"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Score      float32 `json:"score"`
}

// IngestResult summarizes a completed document ingestion.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkNum   int    `json:"chunk_num"`
}
