package embed

import (
	"fmt"
	"strings"

	"github.com/M6saw0/local-file-search-and-monitoring/internal/config"
	"github.com/M6saw0/local-file-search-and-monitoring/internal/tokenize"
)

// ProviderType represents an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline default).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API.
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "static":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	default:
		return "", fmt.Errorf("unknown embeddings provider %q", s)
	}
}

// NewEmbedder builds the configured embedder wrapped in a CachedEmbedder.
// The static provider takes its dimension from vector.dimensions; it never
// mismatches. Ollama vectors are checked against it on every response.
func NewEmbedder(cfg *config.Config, tok tokenize.Tokenizer) (Embedder, error) {
	provider, err := ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, err
	}

	var inner Embedder
	switch provider {
	case ProviderOllama:
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:       cfg.Embeddings.Endpoint,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Vector.Dimensions,
			BatchSize:  cfg.Embeddings.BatchSize,
			Timeout:    cfg.Embeddings.Timeout,
		})
	default:
		inner = NewStaticEmbedder(cfg.Vector.Dimensions, tok)
	}

	if cfg.Embeddings.CacheSize == 0 {
		return inner, nil
	}
	return NewCachedEmbedder(inner, cfg.Embeddings.CacheSize), nil
}
