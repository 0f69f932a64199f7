package embeddings

import "context"

// mockEmbedder returns a constant vector for every input. It exists so
// the pipeline can run end to end without an embedding backend; with a
// constant query vector the vector store degrades to returning its
// nearest stored chunks in index order.
type mockEmbedder struct {
	dimension int
}

func NewMockEmbedder(dimension int) Embedder {
	if dimension <= 0 {
		dimension = 1536
	}
	return &mockEmbedder{dimension: dimension}
}

func (e *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, e.dimension)
		for j := range vec {
			vec[j] = 0.1
		}
		results[i] = vec
	}
	return results, nil
}
