package service

import (
	"fmt"

	"github.com/fathom-labs/corpus/internal/domain"
)

// ChunkConfig controls how extracted text is split for embedding.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1000,
		Overlap: 200,
	}
}

// chunkText splits text into windows of cfg.Size runes, each window
// starting cfg.Size-cfg.Overlap runes after the previous one. The overlap
// keeps shared context between adjacent chunks so matches near a boundary
// are not lost. Empty input yields no chunks. Overlap must satisfy
// 0 <= overlap < size; a non-advancing window would loop forever.
func chunkText(text string, cfg ChunkConfig) ([]string, error) {
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		return nil, errInvalidChunkConfig(cfg)
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil, nil
	}

	step := cfg.Size - cfg.Overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; ; start += step {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
	}

	return chunks, nil
}

func errInvalidChunkConfig(cfg ChunkConfig) error {
	return domain.NewDomainError(
		domain.ErrCodeValidation,
		fmt.Sprintf("chunk overlap must satisfy 0 <= overlap < size, got size=%d overlap=%d", cfg.Size, cfg.Overlap),
	)
}
