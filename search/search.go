// Package search provides the vector-search collaborator used by the
// claim pipeline: similarity search over ingested policy documents,
// plus the indexing side consumed by ingestion.
package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearclaim/claim-agent/config"
	"github.com/clearclaim/claim-agent/embeddings"
)

// Result is one retrieved span of policy-document text. Score is
// normalized to [0, 1]; Page is nil when the source format has no page
// structure.
type Result struct {
	Text     string
	Document string
	Score    float64
	Page     *int
}

// Chunk is one indexable span of a parsed document.
type Chunk struct {
	Index int
	Text  string
	Page  *int
}

// Document is the unit of indexing: a named policy document split into
// ordered chunks. SHA is the content hash used for change detection.
type Document struct {
	Name   string
	SHA    string
	Chunks []Chunk
}

type Store interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Index(ctx context.Context, doc Document) error
	Clear(ctx context.Context) error
}

// NewStore selects the configured backend. The pgvector backend needs
// a Postgres pool; the qdrant backend talks HTTP and ignores it.
func NewStore(cfg config.Config, pool *pgxpool.Pool, embedder embeddings.Embedder) (Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	switch cfg.Search.Provider {
	case config.SearchPgvector:
		if pool == nil {
			return nil, fmt.Errorf("pgvector backend selected but no postgres pool provided")
		}
		return NewPostgresStore(pool, embedder), nil
	case config.SearchQdrant:
		return NewQdrantStore(QdrantOptions{
			BaseURL:    cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.Search.Collection,
			Dimension:  cfg.Embeddings.Dimension,
		}, embedder), nil
	default:
		return nil, fmt.Errorf("unknown search provider: %s", cfg.Search.Provider)
	}
}
