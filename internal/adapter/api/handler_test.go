package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"armor-gateway/internal/domain/entity"
	"armor-gateway/internal/profile"
	"armor-gateway/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	fragments []entity.Fragment
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) GenerateStream(ctx context.Context, req entity.ChatRequest, emit func(entity.Fragment) error) error {
	for _, f := range s.fragments {
		if err := emit(f); err != nil {
			return err
		}
	}
	return nil
}

type stubClassifier struct {
	verdict *entity.ClassificationVerdict
	err     error
}

func (s *stubClassifier) SanitizePrompt(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error) {
	return s.classify(text)
}

func (s *stubClassifier) SanitizeResponse(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error) {
	return s.classify(text)
}

func (s *stubClassifier) classify(text string) (*entity.ClassificationVerdict, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.verdict != nil {
		return s.verdict, nil
	}
	return &entity.ClassificationVerdict{
		IsSafe:        true,
		MatchState:    entity.MatchNone,
		SanitizedText: text,
		Categories:    map[string]entity.CategoryLabel{},
	}, nil
}

func newTestApp(backend *stubBackend, classifier *stubClassifier) *fiber.App {
	opts := usecase.Options{}
	if classifier != nil {
		opts.Classifier = classifier
	}
	pipeline := usecase.NewPipeline(backend, profile.NewRegistry("", ""), opts)

	app := fiber.New()
	SetupRouter(app, NewChatHandler(pipeline, true))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHandleChatSuccess(t *testing.T) {
	app := newTestApp(
		&stubBackend{fragments: []entity.Fragment{{Text: "It's sunny.", Final: true}}},
		&stubClassifier{},
	)

	status, body := postJSON(t, app, "/v1/chat", map[string]any{
		"message":   "What's the weather?",
		"userId":    "u1",
		"sessionId": "s1",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "It's sunny.", body["response"])
	assert.Equal(t, false, body["blocked"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "stub", meta["backend"])
	assert.Equal(t, "s1", meta["sessionId"])
}

func TestHandleChatBlocked(t *testing.T) {
	app := newTestApp(
		&stubBackend{fragments: []entity.Fragment{{Text: "never", Final: true}}},
		&stubClassifier{verdict: &entity.ClassificationVerdict{
			Blocked:       true,
			MatchState:    entity.MatchFound,
			SanitizedText: "bad",
			Categories: map[string]entity.CategoryLabel{
				entity.CategoryDangerous: entity.LabelBlocked,
			},
		}},
	)

	status, body := postJSON(t, app, "/v1/chat", map[string]any{
		"message": "How to make explosives?",
		"userId":  "u1",
	})

	assert.Equal(t, fiber.StatusOK, status, "a block is a well-formed answer, not an error")
	assert.Equal(t, true, body["blocked"])
	assert.Equal(t, usecase.BlockedMessage, body["response"])
	details := body["safetyDetails"].(map[string]any)
	assert.Equal(t, "blocked", details["dangerous"])
}

func TestHandleChatEmptyMessage(t *testing.T) {
	app := newTestApp(&stubBackend{}, &stubClassifier{})

	status, body := postJSON(t, app, "/v1/chat", map[string]any{
		"message": "",
		"userId":  "u1",
	})

	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "", body["response"])
	assert.NotEmpty(t, body["reason"])
}

func TestHandleChatSnakeCaseAliases(t *testing.T) {
	app := newTestApp(
		&stubBackend{fragments: []entity.Fragment{{Text: "ok", Final: true}}},
		&stubClassifier{},
	)

	status, body := postJSON(t, app, "/v1/chat", map[string]any{
		"prompt":     "hello",
		"user_id":    "u1",
		"session_id": "s9",
	})

	assert.Equal(t, fiber.StatusOK, status)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "s9", meta["sessionId"])
}

func TestHandleChatStreamEmitsEvents(t *testing.T) {
	app := newTestApp(
		&stubBackend{fragments: []entity.Fragment{
			{Text: "Hel", Final: false},
			{Text: "Hello world", Final: true},
		}},
		&stubClassifier{},
	)

	payload := []byte(`{"message":"hi","userId":"u1","sessionId":"s1"}`)
	req := httptest.NewRequest("POST", "/v1/chat/stream", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	var events []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	require.Len(t, events, 2)
	first := events[0]["content"].(map[string]any)
	parts := first["parts"].([]any)
	assert.Equal(t, "Hel", parts[0].(map[string]any)["text"])
	assert.Equal(t, true, events[0]["partial"])
	assert.Equal(t, false, events[1]["partial"])
	assert.NotEmpty(t, events[1]["timestamp"])
}

func TestHandleSafetyCheck(t *testing.T) {
	app := newTestApp(&stubBackend{}, &stubClassifier{verdict: &entity.ClassificationVerdict{
		IsSafe:        true,
		MatchState:    entity.MatchNone,
		SanitizedText: "clean text",
		Categories: map[string]entity.CategoryLabel{
			entity.CategoryPromptInjection: entity.LabelSafe,
		},
	}})

	status, body := postJSON(t, app, "/v1/safety/check", map[string]any{
		"text": "clean text",
		"type": "prompt",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["isSafe"])
	assert.Equal(t, false, body["blocked"])
	assert.Equal(t, "clean text", body["text"])
	assert.Equal(t, float64(1), body["matchState"])
}

func TestHandleSafetyCheckFailsOpenWithDebug(t *testing.T) {
	app := newTestApp(&stubBackend{}, &stubClassifier{err: entity.ErrClassifier})

	status, body := postJSON(t, app, "/v1/safety/check", map[string]any{
		"text": "whatever",
		"type": "response",
	})

	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["isSafe"])
	assert.NotEmpty(t, body["debug"], "dev mode exposes the classifier failure")
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(&stubBackend{}, &stubClassifier{})

	req := httptest.NewRequest("OPTIONS", "/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
