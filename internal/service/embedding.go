package service

import "context"

// embeddingBatchSize bounds the number of chunk texts sent to the
// embedding provider in one request. Batching limits payload size and
// keeps the blast radius of a failed call to one batch.
const embeddingBatchSize = 100

// EmbeddingClient converts text to fixed-length vectors. EmbedBatch
// returns one vector per input text, order-preserving.
type EmbeddingClient interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}
