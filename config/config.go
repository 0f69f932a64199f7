package config

import (
	"os"
	"strconv"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"

	SearchPgvector = "pgvector"
	SearchQdrant   = "qdrant"
)

type EmbeddingsConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type SearchConfig struct {
	Provider   string
	Collection string
}

type Config struct {
	PostgresDSN string
	HTTPAddr    string
	DataDir     string
	MaxChunks   int

	QdrantURL    string
	QdrantAPIKey string

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Embeddings EmbeddingsConfig
	Search     SearchConfig
}

func Load() Config {
	return Config{
		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/claim-agent?sslmode=disable"),
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		MaxChunks:   getEnvInt("MAX_CHUNKS", 10),

		QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey: getEnv("QDRANT_API_KEY", ""),

		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Embeddings: EmbeddingsConfig{
			Provider:  getEnv("EMBEDDINGS_PROVIDER", ProviderMock),
			Model:     getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("EMBEDDINGS_DIMENSION", 1536),
		},
		Search: SearchConfig{
			Provider:   getEnv("SEARCH_PROVIDER", SearchPgvector),
			Collection: getEnv("SEARCH_COLLECTION", "insurance_documents"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
