package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearclaim/claim-agent/embeddings"
)

// QdrantStore talks to a Qdrant instance over its HTTP API. Points are
// keyed by random UUIDs; the owning document name lives in the payload
// so reindexing can delete a document's points by filter.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	dimension  int
	embedder   embeddings.Embedder
	client     *http.Client
}

type QdrantOptions struct {
	BaseURL    string
	APIKey     string
	Collection string
	Dimension  int
}

func NewQdrantStore(opts QdrantOptions, embedder embeddings.Embedder) *QdrantStore {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	collection := opts.Collection
	if collection == "" {
		collection = "insurance_documents"
	}

	return &QdrantStore{
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		collection: collection,
		dimension:  opts.Dimension,
		embedder:   embedder,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
	WithVector  bool      `json:"with_vector"`
}

type qdrantSearchResponse struct {
	Result []struct {
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (s *QdrantStore) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	var payload qdrantSearchResponse
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", s.collection), qdrantSearchRequest{
		Vector:      vectors[0],
		Limit:       limit,
		WithPayload: true,
	}, &payload); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	results := make([]Result, 0, len(payload.Result))
	for _, hit := range payload.Result {
		item := Result{Score: hit.Score}
		if text, ok := hit.Payload["text"].(string); ok {
			item.Text = text
		}
		if doc, ok := hit.Payload["document"].(string); ok {
			item.Document = doc
		}
		if page, ok := hit.Payload["page"].(float64); ok {
			p := int(page)
			item.Page = &p
		}
		results = append(results, item)
	}

	return results, nil
}

func (s *QdrantStore) Index(ctx context.Context, doc Document) error {
	if len(doc.Chunks) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	// Drop any points from a prior version of this document.
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection), map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "document", "match": map[string]any{"value": doc.Name}},
			},
		},
	}, nil); err != nil {
		return fmt.Errorf("qdrant delete document points: %w", err)
	}

	texts := make([]string, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(doc.Chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(doc.Chunks), len(vectors))
	}

	points := make([]qdrantPoint, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		payload := map[string]any{
			"document":    doc.Name,
			"text":        chunk.Text,
			"chunk_index": chunk.Index,
		}
		if chunk.Page != nil {
			payload["page"] = *chunk.Page
		}
		points[i] = qdrantPoint{
			ID:      uuid.New().String(),
			Vector:  vectors[i],
			Payload: payload,
		}
	}

	if err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", s.collection), map[string]any{
		"points": points,
	}, nil); err != nil {
		return fmt.Errorf("qdrant upsert points: %w", err)
	}

	return nil
}

func (s *QdrantStore) Clear(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, fmt.Sprintf("/collections/%s", s.collection), nil, nil); err != nil {
		return fmt.Errorf("qdrant drop collection: %w", err)
	}
	return nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	size := s.dimension
	if size <= 0 {
		size = 1536
	}

	err := s.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", s.collection), map[string]any{
		"vectors": map[string]any{
			"size":     size,
			"distance": "Cosine",
		},
	}, nil)
	if err != nil {
		// Re-creating an existing collection returns a conflict; that
		// still means the collection is usable.
		if strings.Contains(err.Error(), "409") || strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("qdrant ensure collection: %w", err)
	}
	return nil
}

func (s *QdrantStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal qdrant request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create qdrant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("call qdrant API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode qdrant response: %w", err)
		}
	}

	return nil
}

var _ Store = (*QdrantStore)(nil)
