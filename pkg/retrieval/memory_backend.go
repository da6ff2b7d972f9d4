package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/Russete77/migadigital/pkg/store"
)

// MemoryBackend runs cosine similarity over chunks held in the store. Suited
// to small knowledge bases and tests; larger deployments use milvus.
type MemoryBackend struct {
	store store.Store
}

// NewMemoryBackend creates an in-memory vector backend over the store.
func NewMemoryBackend(st store.Store) *MemoryBackend {
	return &MemoryBackend{store: st}
}

// Search scores every stored chunk against the query embedding.
func (b *MemoryBackend) Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Match, error) {
	chunks, err := b.store.ListKnowledgeChunks(ctx)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, chunk := range chunks {
		if len(chunk.Embedding) != len(embedding) {
			continue
		}
		sim := cosineSimilarity(embedding, chunk.Embedding)
		if sim < threshold {
			continue
		}
		matches = append(matches, Match{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Similarity: sim,
			Page:       chunk.Page,
			Section:    chunk.Section,
		})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
