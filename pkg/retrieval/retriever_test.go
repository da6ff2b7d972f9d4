package retrieval_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/retrieval"
	"github.com/Russete77/migadigital/pkg/store"
)

// stubEmbedder returns a fixed vector, or an error when failing is set.
type stubEmbedder struct {
	vector  []float32
	failing bool
}

func (s *stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if s.failing {
		return nil, fmt.Errorf("embedding service unreachable")
	}
	return s.vector, nil
}

func seedChunk(t *testing.T, st store.Store, id, content string, embedding []float32) {
	t.Helper()
	require.NoError(t, st.CreateKnowledgeChunk(context.Background(), &store.KnowledgeChunk{
		ID:         id,
		DocumentID: "doc-1",
		Content:    content,
		Embedding:  embedding,
	}))
}

func TestRetrieveWithEmptyKnowledgeBaseReturnsEmptySet(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.Default().Retrieval
	r := retrieval.NewRetriever(cfg, &stubEmbedder{vector: []float32{1, 0, 0}}, retrieval.NewMemoryBackend(st), st)

	res := r.Retrieve(context.Background(), "ansiedade no trabalho", retrieval.Options{})
	require.NotNil(t, res)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Context)
}

func TestRetrieveRanksBySimilarityAndAppliesThreshold(t *testing.T) {
	st := store.NewMemoryStore()
	seedChunk(t, st, "chunk-close", "respiração para crises de ansiedade", []float32{0.9, 0.1, 0})
	seedChunk(t, st, "chunk-far", "receita de bolo de cenoura", []float32{0, 0, 1})
	seedChunk(t, st, "chunk-mid", "como lidar com preocupação excessiva", []float32{0.5, 0.87, 0})

	cfg := config.Default().Retrieval
	cfg.SimilarityThreshold = 0.7
	r := retrieval.NewRetriever(cfg, &stubEmbedder{vector: []float32{1, 0, 0}}, retrieval.NewMemoryBackend(st), st)

	res := r.Retrieve(context.Background(), "ansiedade", retrieval.Options{})
	require.Len(t, res.Matches, 1, "orthogonal and below-threshold chunks must be excluded")
	assert.Equal(t, "chunk-close", res.Matches[0].ChunkID)
	assert.False(t, res.FromFallback)
	assert.Contains(t, res.Context, "respiração")
}

func TestRetrieveFallsBackToKeywordsOnEmbeddingFailure(t *testing.T) {
	st := store.NewMemoryStore()
	seedChunk(t, st, "chunk-1", "técnicas de respiração para ansiedade", []float32{1, 0, 0})

	cfg := config.Default().Retrieval
	r := retrieval.NewRetriever(cfg, &stubEmbedder{failing: true}, retrieval.NewMemoryBackend(st), st)

	res := r.Retrieve(context.Background(), "como controlar a ansiedade", retrieval.Options{})
	require.Len(t, res.Matches, 1)
	assert.True(t, res.FromFallback)
	assert.InDelta(t, 0.5, res.Matches[0].Similarity, 1e-9, "fallback matches carry the nominal similarity")
}

func TestRetrieveWithNoEmbedderUsesFallback(t *testing.T) {
	st := store.NewMemoryStore()
	seedChunk(t, st, "chunk-1", "dicas para insônia e sono", []float32{1, 0, 0})

	cfg := config.Default().Retrieval
	r := retrieval.NewRetriever(cfg, nil, retrieval.NewMemoryBackend(st), st)

	res := r.Retrieve(context.Background(), "não consigo dormir, insônia terrível", retrieval.Options{})
	require.NotNil(t, res)
	assert.True(t, res.FromFallback)
	require.Len(t, res.Matches, 1)
}

func TestContextRespectsBudgetWithTruncatedLastChunk(t *testing.T) {
	st := store.NewMemoryStore()
	long := strings.Repeat("conteúdo sobre ansiedade ", 50)
	seedChunk(t, st, "chunk-a", long, []float32{1, 0, 0})
	seedChunk(t, st, "chunk-b", long, []float32{0.99, 0.1, 0})

	cfg := config.Default().Retrieval
	r := retrieval.NewRetriever(cfg, &stubEmbedder{vector: []float32{1, 0, 0}}, retrieval.NewMemoryBackend(st), st)

	res := r.Retrieve(context.Background(), "ansiedade", retrieval.Options{MaxContextChars: 100})
	require.NotEmpty(t, res.Context)
	assert.LessOrEqual(t, len(res.Context), 100, "context must stay within the budget")
	assert.Len(t, res.Matches, 2, "the match list itself is not truncated by the context budget")
}
