package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/run-bigpig/opsagent/pkg/interfaces"
)

// DefaultModel is used when no model is configured
const DefaultModel = "text-embedding-3-small"

// EmbeddingConfig contains configuration options for embedding generation
type EmbeddingConfig struct {
	// Model is the embedding model to use
	Model string

	// Dimensions specifies the dimensionality of the embedding vectors.
	// Only supported by some models (e.g., text-embedding-3-*)
	Dimensions int

	// UserID is an optional identifier for tracking embedding usage
	UserID string
}

// OpenAIEmbedder embeds runbook queries with the OpenAI embeddings API. The
// model must match the one the runbook index was built with.
type OpenAIEmbedder struct {
	client *openai.Client
	config EmbeddingConfig
}

var _ interfaces.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for model
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return NewOpenAIEmbedderWithConfig(openai.DefaultConfig(apiKey), EmbeddingConfig{Model: model})
}

// NewOpenAIEmbedderWithConfig creates an embedder with a custom client
// configuration, such as another base URL
func NewOpenAIEmbedderWithConfig(clientConfig openai.ClientConfig, config EmbeddingConfig) *OpenAIEmbedder {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Embed implements interfaces.Embedder
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(e.config.Model),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if e.config.Dimensions > 0 {
		req.Dimensions = e.config.Dimensions
	}
	if e.config.UserID != "" {
		req.User = e.config.UserID
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embedding data returned from API")
	}

	return resp.Data[0].Embedding, nil
}

// Model returns the embedding model in use
func (e *OpenAIEmbedder) Model() string {
	return e.config.Model
}
