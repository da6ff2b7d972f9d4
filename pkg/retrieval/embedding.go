// Package retrieval turns a user message into a ranked set of relevant
// knowledge passages via vector similarity, with a lexical fallback when the
// embedding path is unavailable.
package retrieval

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/Russete77/migadigital/pkg/config"
	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// EmbeddingService turns text into a fixed-length float vector.
type EmbeddingService interface {
	Embed(ctx context.Context, input string) ([]float32, error)
}

// OpenAIEmbeddingService calls an OpenAI-compatible embeddings endpoint.
type OpenAIEmbeddingService struct {
	client openai.EmbeddingService
	model  string
}

// NewOpenAIEmbeddingService creates an embedding client against the
// configured base URL.
func NewOpenAIEmbeddingService(cfg config.RetrievalConfig) *OpenAIEmbeddingService {
	opts := []option.RequestOption{}
	if cfg.EmbeddingURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.EmbeddingURL))
	}
	if cfg.EmbeddingAPIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.EmbeddingAPIKey))
	}
	return &OpenAIEmbeddingService{
		client: openai.NewEmbeddingService(opts...),
		model:  cfg.EmbeddingModel,
	}
}

// Embed returns the embedding for a single input.
func (s *OpenAIEmbeddingService) Embed(ctx context.Context, input string) ([]float32, error) {
	res, err := s.client.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{input}},
		Model: s.model,
	})
	if err != nil {
		logging.Errorf("Error creating embedding: %v", err)
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("embedding service returned no data")
	}
	out := make([]float32, len(res.Data[0].Embedding))
	for i, v := range res.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
