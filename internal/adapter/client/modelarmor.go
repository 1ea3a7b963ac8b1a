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

// ModelArmorClient calls the sanitize operations of the content-safety
// service under a policy template. It returns transport and remote failures
// to the caller; the fail-open policy lives in the pipeline, not here.
type ModelArmorClient struct {
	httpClient *http.Client
	endpoint   string
	projectID  string
	location   string
	tokens     repository.TokenSource
}

// NewModelArmorClient builds a classifier client. endpoint overrides the
// regional default when non-empty.
func NewModelArmorClient(projectID, location, endpoint string, tokens repository.TokenSource) *ModelArmorClient {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://modelarmor.%s.rep.googleapis.com", location)
	}
	return &ModelArmorClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoint:   endpoint,
		projectID:  projectID,
		location:   location,
		tokens:     tokens,
	}
}

func (c *ModelArmorClient) SanitizePrompt(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error) {
	body := map[string]any{"userPromptData": map[string]string{"text": text}}
	return c.sanitize(ctx, templateID, "sanitizeUserPrompt", text, body)
}

func (c *ModelArmorClient) SanitizeResponse(ctx context.Context, text, templateID string) (*entity.ClassificationVerdict, error) {
	body := map[string]any{"modelResponseData": map[string]string{"text": text}}
	return c.sanitize(ctx, templateID, "sanitizeModelResponse", text, body)
}

func (c *ModelArmorClient) sanitize(ctx context.Context, templateID, op, original string, body map[string]any) (*entity.ClassificationVerdict, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/projects/%s/locations/%s/templates/%s:%s",
		c.endpoint, c.projectID, c.location, templateID, op)

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrClassifier, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrClassifier, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", entity.ErrClassifier, op, resp.StatusCode, detail)
	}

	var parsed sanitizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response body: %v", entity.ErrClassifier, err)
	}

	return parsed.SanitizationResult.verdict(original), nil
}

// Wire shapes of the sanitize response. All filter results are optional;
// absent ones decode to the zero MatchState and surface as not_assessed.
type sanitizeResponse struct {
	SanitizationResult sanitizationResult `json:"sanitizationResult"`
}

type sanitizationResult struct {
	FilterMatchState entity.MatchState       `json:"filterMatchState"`
	FilterResults    map[string]filterResult `json:"filterResults"`
}

type filterResult struct {
	SDPFilterResult            *sdpFilterResult `json:"sdpFilterResult"`
	PiAndJailbreakFilterResult *matchOnly       `json:"piAndJailbreakFilterResult"`
	MaliciousURIFilterResult   *matchOnly       `json:"maliciousUriFilterResult"`
	RAIFilterResult            *raiFilterResult `json:"raiFilterResult"`
}

type sdpFilterResult struct {
	InspectResult    *matchOnly        `json:"inspectResult"`
	DeidentifyResult *deidentifyResult `json:"deidentifyResult"`
}

type deidentifyResult struct {
	MatchState entity.MatchState `json:"matchState"`
	Data       *struct {
		Text string `json:"text"`
	} `json:"data"`
}

type raiFilterResult struct {
	MatchState           entity.MatchState    `json:"matchState"`
	RAIFilterTypeResults map[string]matchOnly `json:"raiFilterTypeResults"`
}

type matchOnly struct {
	MatchState entity.MatchState `json:"matchState"`
}

// verdict flattens the nested result into the flat decision in one pass.
// All "is this field present" branching happens here and nowhere else.
func (r sanitizationResult) verdict(original string) *entity.ClassificationVerdict {
	blocked := r.FilterMatchState == entity.MatchFound

	categories := make(map[string]entity.CategoryLabel, len(entity.Categories()))
	for _, name := range entity.Categories() {
		categories[name] = entity.LabelNotAssessed
	}

	sanitized := original
	if sdp, ok := r.FilterResults["sdp"]; ok && sdp.SDPFilterResult != nil {
		state := entity.MatchUnknown
		if sdp.SDPFilterResult.InspectResult != nil {
			state = sdp.SDPFilterResult.InspectResult.MatchState
		}
		if deid := sdp.SDPFilterResult.DeidentifyResult; deid != nil {
			if state == entity.MatchUnknown {
				state = deid.MatchState
			}
			// A blocked verdict reports the original text only; a partial
			// rewrite of blocked content must never leak out.
			if deid.Data != nil && deid.Data.Text != "" && !blocked {
				sanitized = deid.Data.Text
			}
		}
		categories[entity.CategorySensitiveData] = state.Label()
	}

	if pi, ok := r.FilterResults["pi_and_jailbreak"]; ok && pi.PiAndJailbreakFilterResult != nil {
		categories[entity.CategoryPromptInjection] = pi.PiAndJailbreakFilterResult.MatchState.Label()
	}
	if uris, ok := r.FilterResults["malicious_uris"]; ok && uris.MaliciousURIFilterResult != nil {
		categories[entity.CategoryMaliciousURL] = uris.MaliciousURIFilterResult.MatchState.Label()
	}
	if rai, ok := r.FilterResults["rai"]; ok && rai.RAIFilterResult != nil {
		categories[entity.CategoryResponsibleAI] = rai.RAIFilterResult.MatchState.Label()
		for key, sub := range rai.RAIFilterResult.RAIFilterTypeResults {
			if name, ok := raiCategoryNames[key]; ok {
				categories[name] = sub.MatchState.Label()
			}
		}
	}

	return &entity.ClassificationVerdict{
		IsSafe:        !blocked,
		Blocked:       blocked,
		MatchState:    r.FilterMatchState,
		SanitizedText: sanitized,
		Categories:    categories,
	}
}

var raiCategoryNames = map[string]string{
	"dangerous":         entity.CategoryDangerous,
	"harassment":        entity.CategoryHarassment,
	"hate_speech":       entity.CategoryHateSpeech,
	"sexually_explicit": entity.CategorySexuallyExplicit,
}
