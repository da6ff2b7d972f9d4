package retrieval

import (
	"context"
	"fmt"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/store"
)

// Match is one scored search hit.
type Match struct {
	ChunkID    string
	DocumentID string
	Content    string
	Similarity float64
	Page       int
	Section    string
}

// VectorBackend runs a nearest-neighbor search over stored chunk embeddings.
type VectorBackend interface {
	// Search returns chunks with similarity >= threshold, best first, at
	// most limit entries.
	Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Match, error)
}

// NewVectorBackend creates a vector search backend from configuration.
func NewVectorBackend(cfg config.RetrievalConfig, st store.Store) (VectorBackend, error) {
	switch cfg.Backend {
	case "memory", "":
		logging.Debugf("Creating in-memory vector backend")
		return NewMemoryBackend(st), nil
	case "milvus":
		logging.Debugf("Creating milvus vector backend - Endpoint: %s, Collection: %s",
			cfg.MilvusAddress, cfg.MilvusCollection)
		return NewMilvusBackend(MilvusBackendOptions{
			Endpoint:   cfg.MilvusAddress,
			Collection: cfg.MilvusCollection,
			Dimension:  cfg.EmbeddingDimension,
		})
	default:
		return nil, fmt.Errorf("vector backend type %q is not implemented", cfg.Backend)
	}
}
