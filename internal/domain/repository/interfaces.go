package repository

import (
	"context"

	"armor-gateway/internal/domain/entity"
)

// TokenSource hands out a bearer credential for the cloud platform,
// refreshing it lazily when the cached one is inside its expiry buffer.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Classifier wraps the two sanitize operations of the content-safety
// service. Transport and remote failures are returned, not swallowed; the
// fail-open substitution is the caller's decision.
type Classifier interface {
	SanitizePrompt(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error)
	SanitizeResponse(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error)
}

// Backend is the generation capability both integrations implement. emit is
// called once per fragment in backend emission order; returning an error
// from emit aborts the stream.
type Backend interface {
	Name() string
	GenerateStream(ctx context.Context, req entity.ChatRequest, emit func(entity.Fragment) error) error
}

// Embedder turns text into a vector for the semantic reply cache.
type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// ReplyCache is the semantic cache over previously generated safe replies.
type ReplyCache interface {
	Search(ctx context.Context, vector []float32, threshold float32, profile string) (*entity.ChatReply, error)
	Save(ctx context.Context, prompt string, reply *entity.ChatReply, vector []float32, profile string) error
}

// RequestLimiter enforces the per-user request budget.
type RequestLimiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
	Record(ctx context.Context, userID string) error
}
