package interfaces

import "context"

// Embedder turns a search query into a vector for similarity search
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
