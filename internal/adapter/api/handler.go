package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"log"
	"time"

	"armor-gateway/internal/domain/entity"
	"armor-gateway/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type ChatHandler struct {
	pipeline *usecase.Pipeline
	devMode  bool
}

func NewChatHandler(pipeline *usecase.Pipeline, devMode bool) *ChatHandler {
	return &ChatHandler{pipeline: pipeline, devMode: devMode}
}

// chatRequest accepts both camelCase and snake_case field names, and
// "prompt" as an alias for "message" on the streaming path.
type chatRequest struct {
	Message      string `json:"message"`
	Prompt       string `json:"prompt"`
	UserID       string `json:"userId"`
	UserIDSnake  string `json:"user_id"`
	SessionID    string `json:"sessionId"`
	SessionSnake string `json:"session_id"`
	Profile      string `json:"safetyProfile"`
}

func (r chatRequest) normalize() entity.ChatRequest {
	req := entity.ChatRequest{
		Message:   r.Message,
		UserID:    r.UserID,
		SessionID: r.SessionID,
		Profile:   r.Profile,
		Timestamp: time.Now().UTC(),
	}
	if req.Message == "" {
		req.Message = r.Prompt
	}
	if req.UserID == "" {
		req.UserID = r.UserIDSnake
	}
	if req.SessionID == "" {
		req.SessionID = r.SessionSnake
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return req
}

type chatResponse struct {
	Response      string                          `json:"response"`
	Blocked       bool                            `json:"blocked"`
	Reason        string                          `json:"reason,omitempty"`
	SafetyDetails map[string]entity.CategoryLabel `json:"safetyDetails"`
	Metadata      map[string]any                  `json:"metadata"`
}

// HandleChat serves the aggregated chat path: one complete answer, safety
// screened on both sides.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var body chatRequest
	if err := c.BodyParser(&body); err != nil {
		return h.failure(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	req := body.normalize()

	reply, err := h.pipeline.Execute(c.Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(chatResponse{
		Response:      reply.Text,
		Blocked:       reply.Blocked,
		Reason:        reply.Reason,
		SafetyDetails: reply.Details,
		Metadata: map[string]any{
			"requestId": uuid.NewString(),
			"sessionId": req.SessionID,
			"backend":   h.pipeline.BackendName(),
			"cached":    reply.Cached,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// streamEvent is the wire shape of one SSE event on the streaming path.
type streamEvent struct {
	Content struct {
		Parts []streamPart `json:"parts"`
		Role  string       `json:"role"`
	} `json:"content"`
	Partial       bool                            `json:"partial"`
	Blocked       bool                            `json:"blocked,omitempty"`
	SafetyDetails map[string]entity.CategoryLabel `json:"safetyDetails,omitempty"`
	Error         string                          `json:"error,omitempty"`
	Timestamp     string                          `json:"timestamp"`
}

type streamPart struct {
	Text string `json:"text"`
}

func newStreamEvent(ev entity.StreamEvent) streamEvent {
	out := streamEvent{
		Partial:       !ev.Final,
		Blocked:       ev.Blocked,
		SafetyDetails: ev.Details,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	out.Content.Role = "model"
	out.Content.Parts = []streamPart{{Text: ev.Text}}
	return out
}

// HandleChatStream serves the live streaming path as text/event-stream.
// Response-side classification is skipped here; the prompt was screened
// before the first byte went out.
func (h *ChatHandler) HandleChatStream(c *fiber.Ctx) error {
	var body chatRequest
	if err := c.BodyParser(&body); err != nil {
		return h.failure(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	req := body.normalize()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("Connection", "keep-alive")

	// The fasthttp request context outlives this handler and is cancelled
	// when the caller disconnects, which aborts the in-flight backend call.
	ctx := c.Context()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		write := func(ev streamEvent) error {
			data, err := json.Marshal(ev)
			if err != nil {
				return err
			}
			if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
				return err
			}
			return w.Flush()
		}

		err := h.pipeline.ExecuteStream(ctx, req, func(ev entity.StreamEvent) error {
			return write(newStreamEvent(ev))
		})
		if err != nil {
			log.Printf("[API] Stream failed session=%s: %v", req.SessionID, err)
			write(h.errorEvent(err))
		}
	}))
	return nil
}

// errorEvent wraps a pipeline failure in the same event shape as a normal
// answer, so the caller never needs special-case handling.
func (h *ChatHandler) errorEvent(err error) streamEvent {
	ev := newStreamEvent(entity.StreamEvent{
		Text:  "I'm sorry, something went wrong while generating a response.",
		Final: true,
	})
	if h.devMode {
		ev.Error = err.Error()
	}
	return ev
}

type safetyCheckRequest struct {
	Text       string `json:"text"`
	Type       string `json:"type"` // "prompt" | "response"
	TemplateID string `json:"templateId"`
}

type safetyCheckResponse struct {
	IsSafe     bool                            `json:"isSafe"`
	Blocked    bool                            `json:"blocked"`
	Text       string                          `json:"text"`
	MatchState entity.MatchState               `json:"matchState"`
	Details    map[string]entity.CategoryLabel `json:"details"`
	Debug      string                          `json:"debug,omitempty"`
}

// HandleSafetyCheck classifies one text directly, for template debugging.
// Classifier failures fail open here too, with the cause exposed under dev
// mode only.
func (h *ChatHandler) HandleSafetyCheck(c *fiber.Ctx) error {
	var body safetyCheckRequest
	if err := c.BodyParser(&body); err != nil {
		return h.failure(c, fiber.StatusBadRequest, "invalid request body", err)
	}

	inbound := body.Type == "response"
	verdict, err := h.pipeline.CheckText(c.Context(), body.Text, body.TemplateID, inbound)
	debug := ""
	if err != nil {
		if errors.Is(err, entity.ErrInvalidRequest) {
			return h.failure(c, fiber.StatusBadRequest, "text must not be empty", err)
		}
		if h.devMode {
			debug = err.Error()
		}
		verdict = entity.FailOpenVerdict(body.Text)
	}

	return c.Status(fiber.StatusOK).JSON(safetyCheckResponse{
		IsSafe:     verdict.IsSafe,
		Blocked:    verdict.Blocked,
		Text:       verdict.SanitizedText,
		MatchState: verdict.MatchState,
		Details:    verdict.Categories,
		Debug:      debug,
	})
}

// mapError turns domain errors into well-formed responses in the success
// shape. Raw error detail leaves the process only under dev mode.
func (h *ChatHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		return h.failure(c, fiber.StatusBadRequest, "message must not be empty", err)
	case errors.Is(err, entity.ErrRateLimitExceeded):
		return h.failure(c, fiber.StatusTooManyRequests, "request limit reached, try again later", err)
	default:
		reason := "generation failed"
		if h.devMode {
			reason = err.Error()
		}
		return c.Status(fiber.StatusInternalServerError).JSON(chatResponse{
			Response:      "I'm sorry, something went wrong while generating a response.",
			SafetyDetails: map[string]entity.CategoryLabel{},
			Reason:        reason,
			Metadata:      map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
		})
	}
}

func (h *ChatHandler) failure(c *fiber.Ctx, status int, reason string, err error) error {
	if h.devMode && err != nil {
		reason = reason + ": " + err.Error()
	}
	return c.Status(status).JSON(chatResponse{
		Response:      "",
		Blocked:       false,
		Reason:        reason,
		SafetyDetails: map[string]entity.CategoryLabel{},
		Metadata:      map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)},
	})
}
