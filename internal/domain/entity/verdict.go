package entity

import (
	"bytes"
	"fmt"
	"time"
)

// MatchState is the three-valued per-filter outcome reported by the
// classifier. The REST API serializes it either as a number or as the
// proto enum name, so it decodes both.
type MatchState int

const (
	MatchUnknown MatchState = 0 // filter not executed
	MatchNone    MatchState = 1 // executed, nothing found
	MatchFound   MatchState = 2 // executed, content flagged
)

func (m *MatchState) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "0", "MATCH_STATE_UNSPECIFIED", "null":
		*m = MatchUnknown
	case "1", "NO_MATCH_FOUND":
		*m = MatchNone
	case "2", "MATCH_FOUND":
		*m = MatchFound
	default:
		return fmt.Errorf("unrecognized match state %s", data)
	}
	return nil
}

// CategoryLabel is the flat per-category outcome derived from a MatchState.
type CategoryLabel string

const (
	LabelNotAssessed CategoryLabel = "not_assessed"
	LabelSafe        CategoryLabel = "safe"
	LabelBlocked     CategoryLabel = "blocked"
)

// Label maps a match state to its category label.
func (m MatchState) Label() CategoryLabel {
	switch m {
	case MatchNone:
		return LabelSafe
	case MatchFound:
		return LabelBlocked
	default:
		return LabelNotAssessed
	}
}

// Category keys of the flattened verdict.
const (
	CategorySensitiveData    = "sensitiveData"
	CategoryPromptInjection  = "promptInjection"
	CategoryMaliciousURL     = "maliciousURL"
	CategoryResponsibleAI    = "responsibleAI"
	CategoryDangerous        = "dangerous"
	CategoryHarassment       = "harassment"
	CategoryHateSpeech       = "hateSpeech"
	CategorySexuallyExplicit = "sexuallyExplicit"
)

// Categories lists every category a verdict reports, assessed or not.
func Categories() []string {
	return []string{
		CategorySensitiveData,
		CategoryPromptInjection,
		CategoryMaliciousURL,
		CategoryResponsibleAI,
		CategoryDangerous,
		CategoryHarassment,
		CategoryHateSpeech,
		CategorySexuallyExplicit,
	}
}

// ClassificationVerdict is the flat decision decoded from one classifier
// call. Invariants: Blocked == (MatchState == MatchFound) and
// IsSafe == !Blocked. SanitizedText equals the input unless a
// de-identification filter rewrote it; a blocked verdict always carries the
// original text, never a partial rewrite.
type ClassificationVerdict struct {
	IsSafe        bool                     `json:"isSafe"`
	Blocked       bool                     `json:"blocked"`
	MatchState    MatchState               `json:"matchState"`
	SanitizedText string                   `json:"text"`
	Categories    map[string]CategoryLabel `json:"details"`
}

// FailOpenVerdict is the substitute verdict the pipeline uses when the
// classifier is unreachable or disabled: trivially safe, text unmodified,
// nothing assessed.
func FailOpenVerdict(text string) *ClassificationVerdict {
	return &ClassificationVerdict{
		IsSafe:        true,
		Blocked:       false,
		MatchState:    MatchUnknown,
		SanitizedText: text,
		Categories:    map[string]CategoryLabel{},
	}
}

// Credential is a cached bearer token for the cloud platform.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}
