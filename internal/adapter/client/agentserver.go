package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"armor-gateway/internal/domain/entity"
	"armor-gateway/internal/domain/repository"
)

// AgentServerBackend talks to a self-hosted agent server over its fixed
// streaming endpoint. Bearer auth is optional per deployment: a nil token
// source means unauthenticated calls.
type AgentServerBackend struct {
	httpClient *http.Client
	baseURL    string
	appName    string
	tokens     repository.TokenSource
}

func NewAgentServerBackend(baseURL, appName string, tokens repository.TokenSource) *AgentServerBackend {
	return &AgentServerBackend{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimRight(baseURL, "/"),
		appName:    appName,
		tokens:     tokens,
	}
}

func (b *AgentServerBackend) Name() string { return "agent-server" }

func (b *AgentServerBackend) GenerateStream(ctx context.Context, req entity.ChatRequest, emit func(entity.Fragment) error) error {
	if err := b.ensureSession(ctx, req.UserID, req.SessionID); err != nil {
		return err
	}

	envelope := map[string]any{
		"app_name":   b.appName,
		"user_id":    req.UserID,
		"session_id": req.SessionID,
		"streaming":  true,
		"new_message": map[string]any{
			"role": "user",
			"parts": []map[string]string{
				{"text": req.Message},
			},
		},
	}
	payload, _ := json.Marshal(envelope)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/run_sse", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	if err := b.authorize(ctx, httpReq); err != nil {
		return err
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: agent server returned status %d: %s", entity.ErrBackend, resp.StatusCode, detail)
	}

	return decodeEventStream(resp.Body, emit)
}

// ensureSession creates the session the agent server requires before a run.
// An already-existing session is not an error.
func (b *AgentServerBackend) ensureSession(ctx context.Context, userID, sessionID string) error {
	url := fmt.Sprintf("%s/apps/%s/users/%s/sessions/%s", b.baseURL, b.appName, userID, sessionID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	if err := b.authorize(ctx, httpReq); err != nil {
		return err
	}

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrBackend, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512))

	// 400 means the session already exists.
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 || resp.StatusCode == http.StatusBadRequest {
		return nil
	}
	return fmt.Errorf("%w: session create returned status %d", entity.ErrBackend, resp.StatusCode)
}

func (b *AgentServerBackend) authorize(ctx context.Context, req *http.Request) error {
	req.Header.Set("Content-Type", "application/json")
	if b.tokens == nil {
		return nil
	}
	token, err := b.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
