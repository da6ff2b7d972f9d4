package retrieval

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/Russete77/migadigital/pkg/observability/logging"
)

// MilvusBackendOptions defines config parameters for the Milvus connection.
type MilvusBackendOptions struct {
	Endpoint   string // e.g. "127.0.0.1:19530"
	Collection string
	Dimension  int
}

// MilvusBackend searches knowledge chunk embeddings stored in Milvus.
type MilvusBackend struct {
	client     client.Client
	collection string
	dimension  int
}

// NewMilvusBackend initializes a connection to Milvus and ensures the
// knowledge collection exists.
func NewMilvusBackend(options MilvusBackendOptions) (*MilvusBackend, error) {
	ctx := context.Background()

	cli, err := client.NewGrpcClient(ctx, options.Endpoint)
	if err != nil {
		logging.Errorf("Milvus connect error: %v", err)
		return nil, err
	}
	logging.Debugf("Connected to Milvus at %s", options.Endpoint)

	b := &MilvusBackend{client: cli, collection: options.Collection, dimension: options.Dimension}
	if err := b.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *MilvusBackend) ensureCollection(ctx context.Context) error {
	has, err := b.client.HasCollection(ctx, b.collection)
	if err != nil {
		return err
	}
	if has {
		logging.Infof("Collection %s already exists", b.collection)
		return b.client.LoadCollection(ctx, b.collection, false)
	}

	schema := &entity.Schema{
		CollectionName: b.collection,
		Description:    "Knowledge chunk embeddings",
		AutoID:         false,
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", b.dimension)},
			},
		},
	}
	if err := b.client.CreateCollection(ctx, schema, 1); err != nil {
		logging.Errorf("Error creating Milvus collection: %v", err)
		return err
	}
	logging.Infof("Created collection %s", b.collection)
	return b.client.LoadCollection(ctx, b.collection, false)
}

// Search runs a cosine-metric vector search and filters by threshold.
func (b *MilvusBackend) Search(ctx context.Context, embedding []float32, threshold float64, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 4
	}
	sp, err := entity.NewIndexFlatSearchParam()
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := b.client.Search(ctx, b.collection, nil, "",
		[]string{"chunk_id", "document_id", "content"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"vector", entity.COSINE, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	var matches []Match
	for _, result := range results {
		chunkIDs := stringColumn(result.Fields.GetColumn("chunk_id"))
		docIDs := stringColumn(result.Fields.GetColumn("document_id"))
		contents := stringColumn(result.Fields.GetColumn("content"))
		for i := 0; i < result.ResultCount; i++ {
			sim := float64(result.Scores[i])
			if sim < threshold {
				continue
			}
			m := Match{Similarity: sim}
			if i < len(chunkIDs) {
				m.ChunkID = chunkIDs[i]
			}
			if i < len(docIDs) {
				m.DocumentID = docIDs[i]
			}
			if i < len(contents) {
				m.Content = contents[i]
			}
			matches = append(matches, m)
		}
	}
	return matches, nil
}

func stringColumn(col entity.Column) []string {
	vc, ok := col.(*entity.ColumnVarChar)
	if !ok {
		return nil
	}
	return vc.Data()
}
