package domain

import "time"

// EmbeddedChunk is one bounded-length substring of an extracted document
// together with its embedding vector. Chunks are identified by
// (KnowledgeSourceID, FileID, ChunkIndex); indices within a file are
// contiguous from 0. Chunks are created in bulk during ingestion and
// deleted in bulk on refresh or delete, never mutated individually.
type EmbeddedChunk struct {
	KnowledgeSourceID string
	FileID            string
	FileName          string
	FilePath          string
	ChunkIndex        int
	Text              string
	Embedding         []float32
	MimeType          string
	LastModified      time.Time
	Size              int64
	CreatedAt         time.Time
}
