package entity

import "time"

type ChatRequest struct {
	Message   string `json:"message"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`

	// Optional: named safety profile selecting the classifier templates
	// for this request. Empty means the registry default.
	Profile string `json:"safetyProfile"`

	Timestamp time.Time `json:"timestamp"`
}

type ChatReply struct {
	Text    string                   `json:"response"`
	Blocked bool                     `json:"blocked"`
	Reason  string                   `json:"reason,omitempty"`
	Details map[string]CategoryLabel `json:"safetyDetails"`
	Cached  bool                     `json:"cached"`  // Served from the semantic cache?
	Backend string                   `json:"backend"` // Which backend actually answered?
}

// Fragment is one unit of backend output. Incremental fragments append to
// what came before; a final fragment carries the full accumulated text and
// replaces it.
type Fragment struct {
	Text  string
	Final bool
}

// StreamEvent is the unit emitted to the caller on the streaming path. A
// block decision is always the first and only event of its stream.
type StreamEvent struct {
	Text    string
	Final   bool
	Blocked bool
	Details map[string]CategoryLabel
}
