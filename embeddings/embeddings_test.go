package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMockEmbedderConstantVector(t *testing.T) {
	embedder := NewMockEmbedder(8)

	vectors, err := embedder.Embed(context.Background(), []string{"knee surgery clause", "waiting period clause"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != 8 {
			t.Fatalf("expected dimension 8, got %d", len(vec))
		}
		for _, value := range vec {
			if value != 0.1 {
				t.Fatalf("expected constant 0.1 components, got %v", value)
			}
		}
	}
}

func TestOllamaEmbedderRoundTrip(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" {
			t.Fatalf("unexpected model %q", req.Model)
		}
		prompts = append(prompts, req.Prompt)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.5, 0.25, 0.125}})
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic-embed-text", Dimension: 3})

	vectors, err := embedder.Embed(context.Background(), []string{"clause one", "clause two"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 2 || len(vectors[0]) != 3 {
		t.Fatalf("unexpected vector shape: %d x %d", len(vectors), len(vectors[0]))
	}
	if vectors[0][0] != 0.5 {
		t.Fatalf("unexpected component: %v", vectors[0][0])
	}
	if len(prompts) != 2 || prompts[1] != "clause two" {
		t.Fatalf("expected one request per text, got %v", prompts)
	}
}

func TestOllamaEmbedderDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float64{0.5, 0.25}})
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "nomic-embed-text", Dimension: 3})

	if _, err := embedder.Embed(context.Background(), []string{"clause"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestOllamaEmbedderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	embedder := NewOllamaEmbedder(Options{OllamaHost: srv.URL, Model: "missing"})

	_, err := embedder.Embed(context.Background(), []string{"clause"})
	if err == nil {
		t.Fatal("expected API error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected status in error, got %v", err)
	}
}

func TestOpenAIEmbedderBatchesRequests(t *testing.T) {
	type embeddingRequest struct {
		Input      []string `json:"input"`
		Model      string   `json:"model"`
		Dimensions int      `json:"dimensions"`
	}

	var batchSizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Dimensions != 2 {
			t.Fatalf("expected dimensions 2 forwarded, got %d", req.Dimensions)
		}
		batchSizes = append(batchSizes, len(req.Input))

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{0.1, 0.2},
			}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
	defer srv.Close()

	embedder := NewOpenAIEmbedder(Options{
		OpenAIAPIKey:  "test-key",
		OpenAIBaseURL: srv.URL,
		Model:         "text-embedding-3-small",
		Dimension:     2,
	})

	texts := make([]string, 130)
	for i := range texts {
		texts[i] = "policy chunk"
	}

	vectors, err := embedder.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 130 {
		t.Fatalf("expected 130 vectors, got %d", len(vectors))
	}
	if len(batchSizes) != 3 || batchSizes[0] != 64 || batchSizes[1] != 64 || batchSizes[2] != 2 {
		t.Fatalf("expected batches of 64/64/2, got %v", batchSizes)
	}
}
