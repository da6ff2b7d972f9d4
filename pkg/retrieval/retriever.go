package retrieval

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
	"github.com/Russete77/migadigital/pkg/observability/metrics"
	"github.com/Russete77/migadigital/pkg/store"
)

// Options tune a single retrieval call. Zero values fall back to the
// retriever's configured defaults.
type Options struct {
	Threshold       float64
	MaxResults      int
	MaxContextChars int
}

// ResultSet is the outcome of one retrieval: the ranked matches and the
// formatted context string handed to the completion prompt. An empty set is
// a valid, expected result.
type ResultSet struct {
	Matches []Match
	Context string
	// FromFallback reports that the lexical keyword path produced the
	// matches rather than vector search.
	FromFallback bool
}

// Retriever retrieves relevant knowledge passages for a query.
type Retriever struct {
	embedder EmbeddingService
	backend  VectorBackend
	store    store.Store
	cfg      config.RetrievalConfig
}

// NewRetriever creates a retriever. The embedder may be nil when no embedding
// service is configured; retrieval then goes straight to the keyword fallback.
func NewRetriever(cfg config.RetrievalConfig, embedder EmbeddingService, backend VectorBackend, st store.Store) *Retriever {
	return &Retriever{embedder: embedder, backend: backend, store: st, cfg: cfg}
}

// Retrieve runs the embedding search with a lexical fallback. It never
// returns an error to the caller: any failure degrades to the fallback, and
// a fallback failure degrades to an empty result set.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) *ResultSet {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = r.cfg.SimilarityThreshold
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = r.cfg.MaxResults
	}
	budget := opts.MaxContextChars
	if budget <= 0 {
		budget = r.cfg.MaxContextChars
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()

	matches, err := r.vectorSearch(ctx, query, threshold, limit)
	if err != nil {
		logging.Warnf("[Retriever] vector search failed, using keyword fallback: %v", err)
		metrics.RecordComponentError("retriever", "vector_search")
		fallback, fbErr := r.keywordFallback(ctx, query, limit)
		if fbErr != nil {
			logging.Warnf("[Retriever] keyword fallback failed, returning empty context: %v", fbErr)
			metrics.RecordComponentError("retriever", "keyword_fallback")
			return &ResultSet{}
		}
		metrics.RetrievalResults.WithLabelValues("keyword").Observe(float64(len(fallback)))
		return &ResultSet{
			Matches:      fallback,
			Context:      formatContext(fallback, budget),
			FromFallback: true,
		}
	}

	metrics.RetrievalResults.WithLabelValues(r.cfg.Backend).Observe(float64(len(matches)))
	return &ResultSet{
		Matches: matches,
		Context: formatContext(matches, budget),
	}
}

func (r *Retriever) vectorSearch(ctx context.Context, query string, threshold float64, limit int) ([]Match, error) {
	if r.embedder == nil {
		return nil, fmt.Errorf("no embedding service configured")
	}
	if r.backend == nil {
		return nil, fmt.Errorf("no vector backend configured")
	}
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return r.backend.Search(ctx, embedding, threshold, limit)
}

// keywordFallback extracts up to 5 words longer than 3 characters from the
// query and matches chunk text against any of them. Matches get a fixed
// nominal similarity since no vector distance exists for them.
func (r *Retriever) keywordFallback(ctx context.Context, query string, limit int) ([]Match, error) {
	words := extractKeywords(query, 5)
	if len(words) == 0 {
		return nil, nil
	}
	chunks, err := r.store.SearchChunksByKeywords(ctx, words, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(chunks))
	for _, chunk := range chunks {
		matches = append(matches, Match{
			ChunkID:    chunk.ID,
			DocumentID: chunk.DocumentID,
			Content:    chunk.Content,
			Similarity: 0.5,
			Page:       chunk.Page,
			Section:    chunk.Section,
		})
	}
	return matches, nil
}

// extractKeywords pulls up to limit distinct words longer than 3 characters.
func extractKeywords(query string, limit int) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len([]rune(f)) <= 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// formatContext joins chunk contents under a character budget. The last chunk
// is truncated rather than dropped when it would overflow.
func formatContext(matches []Match, budget int) string {
	if len(matches) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range matches {
		section := m.Content
		if i > 0 {
			section = "\n\n" + section
		}
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(section) > remaining {
			section = truncateUTF8(section, remaining)
		}
		b.WriteString(section)
	}
	return b.String()
}

// truncateUTF8 truncates at a rune boundary at or below n bytes.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
