package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"armor-gateway/internal/domain/entity"
	"armor-gateway/internal/domain/repository"
	"armor-gateway/internal/profile"
)

const (
	// Minimum similarity for a semantic cache hit.
	cacheScoreThreshold = 0.80

	// BlockedMessage is the user-facing explanation for a safety block. It
	// travels through the same channel as a normal answer.
	BlockedMessage = "I'm sorry, but I can't help with that request. It was flagged by our content safety policy."

	// emptyReplyMessage guards the aggregated path when the backend stream
	// closed without emitting a single fragment.
	emptyReplyMessage = "I couldn't generate a response. Please try again."
)

// Pipeline is the per-request control flow: validate, rate-limit, classify
// the prompt, dispatch to the backend, and classify the response when
// operating in aggregated mode. Live streams skip response-side
// classification: it needs the complete text, which conflicts with
// low-latency streaming, so the prompt is screened eagerly instead.
type Pipeline struct {
	backend    repository.Backend
	profiles   *profile.Registry
	classifier repository.Classifier
	embedder   repository.Embedder
	cache      repository.ReplyCache
	limiter    repository.RequestLimiter
	timeout    time.Duration
}

// Options carries the optional collaborators. A nil Classifier disables
// safety classification entirely; a nil Embedder or Cache disables the
// semantic reply cache; a nil Limiter disables rate limiting.
type Options struct {
	Classifier repository.Classifier
	Embedder   repository.Embedder
	Cache      repository.ReplyCache
	Limiter    repository.RequestLimiter
	Timeout    time.Duration
}

func NewPipeline(backend repository.Backend, profiles *profile.Registry, opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Pipeline{
		backend:    backend,
		profiles:   profiles,
		classifier: opts.Classifier,
		embedder:   opts.Embedder,
		cache:      opts.Cache,
		limiter:    opts.Limiter,
		timeout:    opts.Timeout,
	}
}

// Execute runs the aggregated (non-streaming) request flow and returns one
// complete reply.
func (p *Pipeline) Execute(ctx context.Context, req entity.ChatRequest) (*entity.ChatReply, error) {
	prof, err := p.admit(ctx, &req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Screen the prompt before any generation cost is paid.
	verdict := p.classify(ctx, req.Message, prof.PromptTemplate, false)
	if verdict.Blocked {
		return blockedReply(verdict), nil
	}
	req.Message = verdict.SanitizedText

	if hit := p.cacheLookup(ctx, req, prof.Name); hit != nil {
		p.recordUsage(req.UserID)
		return hit, nil
	}

	text, err := p.collect(ctx, req)
	if err != nil {
		return nil, err
	}

	reply := &entity.ChatReply{
		Text:    text,
		Details: verdict.Categories,
		Backend: p.backend.Name(),
	}

	// Aggregated mode has the complete text, so the response side is
	// screened too.
	respVerdict := p.classify(ctx, text, prof.ResponseTemplate, true)
	if respVerdict.Blocked {
		return blockedReply(respVerdict), nil
	}
	reply.Text = respVerdict.SanitizedText
	reply.Details = respVerdict.Categories

	p.saveAsync(req, reply, prof.Name)
	return reply, nil
}

// ExecuteStream runs the live streaming flow. A prompt-side block is the
// first and only event; no partial content ever precedes it.
func (p *Pipeline) ExecuteStream(ctx context.Context, req entity.ChatRequest, emit func(entity.StreamEvent) error) error {
	prof, err := p.admit(ctx, &req)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	verdict := p.classify(ctx, req.Message, prof.PromptTemplate, false)
	if verdict.Blocked {
		return emit(entity.StreamEvent{
			Text:    BlockedMessage,
			Final:   true,
			Blocked: true,
			Details: verdict.Categories,
		})
	}
	req.Message = verdict.SanitizedText

	err = p.backend.GenerateStream(ctx, req, func(f entity.Fragment) error {
		return emit(entity.StreamEvent{Text: f.Text, Final: f.Final})
	})
	if err != nil {
		return err
	}

	p.recordUsage(req.UserID)
	return nil
}

// CheckText classifies one text outside the chat flow, for the classifier
// test endpoint. templateID overrides the direction default when non-empty.
func (p *Pipeline) CheckText(ctx context.Context, text, templateID string, inbound bool) (*entity.ClassificationVerdict, error) {
	if strings.TrimSpace(text) == "" {
		return nil, entity.ErrInvalidRequest
	}
	if p.classifier == nil {
		return entity.FailOpenVerdict(text), nil
	}

	if templateID == "" {
		prof, err := p.profiles.Resolve("")
		if err != nil {
			return nil, err
		}
		if inbound {
			templateID = prof.ResponseTemplate
		} else {
			templateID = prof.PromptTemplate
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if inbound {
		return p.classifier.SanitizeResponse(ctx, text, templateID)
	}
	return p.classifier.SanitizePrompt(ctx, text, templateID)
}

// BackendName reports the configured backend strategy.
func (p *Pipeline) BackendName() string { return p.backend.Name() }

// admit validates the request, applies the rate limit and resolves the
// profile. It runs before any network call.
func (p *Pipeline) admit(ctx context.Context, req *entity.ChatRequest) (profile.Profile, error) {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return profile.Profile{}, fmt.Errorf("%w: message must not be empty", entity.ErrInvalidRequest)
	}
	if req.UserID == "" {
		req.UserID = "anonymous"
	}

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, req.UserID)
		if err != nil {
			return profile.Profile{}, fmt.Errorf("rate limiter check failed: %w", err)
		}
		if !allowed {
			return profile.Profile{}, entity.ErrRateLimitExceeded
		}
	}

	prof, err := p.profiles.Resolve(req.Profile)
	if err != nil {
		return profile.Profile{}, fmt.Errorf("%w: %v", entity.ErrInvalidRequest, err)
	}

	log.Printf("[GATEWAY] session=%s user=%s backend=%s profile=%s msg=%q",
		req.SessionID, req.UserID, p.backend.Name(), prof.Name, truncate(req.Message, 80))
	return prof, nil
}

// classify screens one text. A disabled classifier and any classifier
// failure both substitute the all-safe verdict: availability wins over
// strict enforcement when the classifier cannot answer.
func (p *Pipeline) classify(ctx context.Context, text, templateID string, inbound bool) *entity.ClassificationVerdict {
	if p.classifier == nil {
		return entity.FailOpenVerdict(text)
	}

	var verdict *entity.ClassificationVerdict
	var err error
	if inbound {
		verdict, err = p.classifier.SanitizeResponse(ctx, text, templateID)
	} else {
		verdict, err = p.classifier.SanitizePrompt(ctx, text, templateID)
	}
	if err != nil {
		log.Printf("[SAFETY] Classifier failure, failing open: %v", err)
		return entity.FailOpenVerdict(text)
	}
	return verdict
}

// collect aggregates the backend stream into one value: incremental
// fragments append, a final fragment replaces the accumulator wholesale.
func (p *Pipeline) collect(ctx context.Context, req entity.ChatRequest) (string, error) {
	var acc strings.Builder
	got := false

	err := p.backend.GenerateStream(ctx, req, func(f entity.Fragment) error {
		got = true
		if f.Final {
			acc.Reset()
		}
		acc.WriteString(f.Text)
		return nil
	})
	if err != nil {
		return "", err
	}
	if !got {
		return emptyReplyMessage, nil
	}
	return acc.String(), nil
}

func (p *Pipeline) cacheLookup(ctx context.Context, req entity.ChatRequest, profileName string) *entity.ChatReply {
	if p.embedder == nil || p.cache == nil {
		return nil
	}
	vector, err := p.embedder.CreateEmbedding(ctx, req.Message)
	if err != nil {
		log.Printf("[CACHE] Embedding failed, skipping lookup: %v", err)
		return nil
	}
	hit, err := p.cache.Search(ctx, vector, cacheScoreThreshold, profileName)
	if err != nil || hit == nil {
		return nil
	}
	hit.Cached = true
	return hit
}

// saveAsync records usage and caches the safe reply in the background. The
// request context may already be gone by then.
func (p *Pipeline) saveAsync(req entity.ChatRequest, reply *entity.ChatReply, profileName string) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if p.limiter != nil {
			if err := p.limiter.Record(bgCtx, req.UserID); err != nil {
				log.Printf("[LIMITER] Usage record failed: %v", err)
			}
		}
		if p.embedder != nil && p.cache != nil && !reply.Blocked {
			vector, err := p.embedder.CreateEmbedding(bgCtx, req.Message)
			if err != nil {
				return
			}
			if err := p.cache.Save(bgCtx, req.Message, reply, vector, profileName); err != nil {
				log.Printf("[CACHE] Save failed: %v", err)
			}
		}
	}()
}

func (p *Pipeline) recordUsage(userID string) {
	if p.limiter == nil {
		return
	}
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.limiter.Record(bgCtx, userID); err != nil {
			log.Printf("[LIMITER] Usage record failed: %v", err)
		}
	}()
}

func blockedReply(verdict *entity.ClassificationVerdict) *entity.ChatReply {
	return &entity.ChatReply{
		Text:    BlockedMessage,
		Blocked: true,
		Reason:  "flagged by content safety policy",
		Details: verdict.Categories,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
