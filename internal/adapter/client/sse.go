package client

import (
	"bufio"
	"encoding/json"
	"io"
	"log"
	"strings"

	"armor-gateway/internal/domain/entity"
)

// agentEvent is the SSE chunk shape both backends emit: a content envelope
// with text parts, plus a partial flag distinguishing incremental chunks
// from the final full-content event.
type agentEvent struct {
	Content *struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
		Role string `json:"role"`
	} `json:"content"`
	Partial      bool   `json:"partial"`
	ErrorMessage string `json:"errorMessage"`
}

func (e *agentEvent) text() string {
	if e.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range e.Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// decodeEventStream reads server-sent-event frames and forwards each text
// chunk as a fragment in emission order. A data line that fails to parse as
// JSON is skipped; it never aborts the stream.
func decodeEventStream(r io.Reader, emit func(entity.Fragment) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var event agentEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Printf("[STREAM] skipping malformed chunk: %v", err)
			continue
		}
		text := event.text()
		if text == "" {
			continue
		}
		if err := emit(entity.Fragment{Text: text, Final: !event.Partial}); err != nil {
			return err
		}
	}
	return scanner.Err()
}
