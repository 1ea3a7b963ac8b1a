package main

import (
	"context"
	"log"

	"armor-gateway/internal/adapter/api"
	"armor-gateway/internal/adapter/auth"
	"armor-gateway/internal/adapter/client"
	"armor-gateway/internal/adapter/store"
	"armor-gateway/internal/config"
	"armor-gateway/internal/domain/repository"
	"armor-gateway/internal/profile"
	"armor-gateway/internal/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"google.golang.org/genai"
)

func main() {
	if err := godotenv.Load(".env.dev"); err != nil {
		log.Println("Warning: .env.dev file not found, using system environment variables")
	}
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Single process-wide credential slot, shared by the classifier and
	// the backend integrations.
	tokens := auth.NewTokenCache(cfg.ServiceAccountEmail, cfg.ServiceAccountPrivKey)

	// Safety profile registry, with optional file override and hot reload
	profiles := profile.NewRegistry(cfg.PromptTemplate, cfg.ResponseTemplate)
	if cfg.ProfileFile != "" {
		if err := profiles.LoadFile(cfg.ProfileFile); err != nil {
			log.Fatalf("failed to load safety profiles: %v", err)
		}
		go func() {
			if err := profiles.Watch(ctx, cfg.ProfileFile); err != nil {
				log.Printf("[PROFILES] Watcher stopped: %v", err)
			}
		}()
	}

	opts := usecase.Options{Timeout: cfg.RequestTimeout}

	if cfg.ClassifierEnabled {
		opts.Classifier = client.NewModelArmorClient(cfg.ProjectID, cfg.Location, cfg.ClassifierEndpoint, tokens)
	} else {
		log.Println("[SAFETY] Classifier disabled by configuration; all text passes through unscreened")
	}

	// Backend strategy is fixed per deployment, never per request.
	var backend repository.Backend
	switch cfg.BackendMode {
	case config.BackendReasoningEngine:
		backend = client.NewReasoningEngineBackend(cfg.ProjectID, cfg.Location, cfg.ReasoningEngineID, tokens)
	case config.BackendAgentServer:
		backend = client.NewAgentServerBackend(cfg.AgentServerURL, cfg.AgentAppName, nil)
	}

	// Redis for Rate Limiting
	if cfg.RateLimitEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		opts.Limiter = store.NewRedisLimiter(rdb, cfg.RequestLimit)
	}

	// Qdrant + Vertex embeddings for the semantic reply cache
	if cfg.CacheEnabled() {
		qClient, err := qdrant.NewClient(&qdrant.Config{
			Host: cfg.QdrantHost,
			Port: cfg.QdrantPort,
		})
		if err != nil {
			log.Fatalf("failed to connect to qdrant: %v", err)
		}

		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  cfg.ProjectID,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			log.Fatalf("failed to init genai client: %v", err)
		}

		replyCache := store.NewQdrantCache(qClient, cfg.QdrantCollection)
		if err := replyCache.InitCollection(ctx, 768); err != nil {
			log.Fatalf("failed to init qdrant collection: %v", err)
		}

		opts.Cache = replyCache
		opts.Embedder = client.NewVertexEmbedder(genaiClient, cfg.EmbeddingModel)
	}

	pipeline := usecase.NewPipeline(backend, profiles, opts)

	// Initialize API Layer (Delivery Layer)
	app := fiber.New(fiber.Config{
		AppName: "Armor Gateway",
	})

	handler := api.NewChatHandler(pipeline, cfg.DevMode)
	api.SetupRouter(app, handler)

	// Start Server
	log.Printf("Armor Gateway running on port %s (backend=%s, classifier=%t)",
		cfg.Port, backend.Name(), cfg.ClassifierEnabled)
	log.Fatal(app.Listen(":" + cfg.Port))
}
