package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"armor-gateway/internal/domain/entity"
	"armor-gateway/internal/domain/repository"
)

// ReasoningEngineBackend talks to the managed reasoning-engine deployment:
// a named remote resource with bearer-authenticated streaming and
// non-streaming query operations, SSE framed.
type ReasoningEngineBackend struct {
	httpClient *http.Client
	baseURL    string
	resource   string // projects/{p}/locations/{l}/reasoningEngines/{id}
	tokens     repository.TokenSource
}

func NewReasoningEngineBackend(projectID, location, engineID string, tokens repository.TokenSource) *ReasoningEngineBackend {
	return &ReasoningEngineBackend{
		// Generation dominates the request budget; the pipeline's request
		// context enforces the wall-clock cap, not this client.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    fmt.Sprintf("https://%s-aiplatform.googleapis.com", location),
		resource:   fmt.Sprintf("projects/%s/locations/%s/reasoningEngines/%s", projectID, location, engineID),
		tokens:     tokens,
	}
}

func (b *ReasoningEngineBackend) Name() string { return "reasoning-engine" }

func (b *ReasoningEngineBackend) GenerateStream(ctx context.Context, req entity.ChatRequest, emit func(entity.Fragment) error) error {
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return err
	}

	envelope := map[string]any{
		"class_method": "stream_query",
		"input": map[string]any{
			"message":    req.Message,
			"user_id":    req.UserID,
			"session_id": req.SessionID,
		},
	}
	payload, _ := json.Marshal(envelope)

	url := fmt.Sprintf("%s/v1/%s:streamQuery?alt=sse", b.baseURL, b.resource)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: reasoning engine returned status %d: %s", entity.ErrBackend, resp.StatusCode, detail)
	}

	return decodeEventStream(resp.Body, emit)
}
