package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// VertexEmbedder produces the query vectors for the semantic reply cache.
type VertexEmbedder struct {
	client *genai.Client
	model  string // e.g., "text-embedding-004"
}

func NewVertexEmbedder(c *genai.Client, model string) *VertexEmbedder {
	return &VertexEmbedder{client: c, model: model}
}

func (e *VertexEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, err
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding model %s returned no vectors", e.model)
	}
	return res.Embeddings[0].Values, nil
}
