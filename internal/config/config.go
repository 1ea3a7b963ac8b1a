package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selection values for BACKEND_MODE.
const (
	BackendReasoningEngine = "reasoning-engine"
	BackendAgentServer     = "agent-server"
)

// Config is the full environment-driven configuration surface, loaded once
// at startup.
type Config struct {
	Port       string
	Env        string
	AppVersion string
	DevMode    bool

	// Cloud platform
	ProjectID             string
	Location              string
	ServiceAccountEmail   string
	ServiceAccountPrivKey string

	// Safety classifier
	ClassifierEnabled  bool
	ClassifierEndpoint string // override; empty means the regional default
	PromptTemplate     string // default outbound template id
	ResponseTemplate   string // default inbound template id
	ProfileFile        string // optional YAML profile registry override

	// Backend selection
	BackendMode       string
	ReasoningEngineID string
	AgentServerURL    string
	AgentAppName      string

	// Supporting stores (optional: empty address disables the feature)
	RedisAddr        string
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	EmbeddingModel   string
	RequestLimit     int

	RequestTimeout time.Duration
}

// Load reads the configuration from the environment. Only settings needed
// by the selected backend are validated hard; everything else degrades to a
// disabled feature.
func Load() (*Config, error) {
	cfg := &Config{
		Port:       getEnv("PORT", "8080"),
		Env:        getEnv("ENV", "development"),
		AppVersion: getEnv("APP_VERSION", "dev"),
		DevMode:    getBool("DEV_MODE", getEnv("ENV", "development") != "production"),

		ProjectID:             os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Location:              getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		ServiceAccountEmail:   os.Getenv("SERVICE_ACCOUNT_EMAIL"),
		ServiceAccountPrivKey: os.Getenv("SERVICE_ACCOUNT_PRIVATE_KEY"),

		ClassifierEnabled:  getBool("MODEL_ARMOR_ENABLED", true),
		ClassifierEndpoint: os.Getenv("MODEL_ARMOR_ENDPOINT"),
		PromptTemplate:     os.Getenv("MODEL_ARMOR_PROMPT_TEMPLATE"),
		ResponseTemplate:   os.Getenv("MODEL_ARMOR_RESPONSE_TEMPLATE"),
		ProfileFile:        os.Getenv("SAFETY_PROFILE_FILE"),

		BackendMode:       getEnv("BACKEND_MODE", BackendReasoningEngine),
		ReasoningEngineID: os.Getenv("REASONING_ENGINE_ID"),
		AgentServerURL:    os.Getenv("AGENT_SERVER_URL"),
		AgentAppName:      getEnv("AGENT_APP_NAME", "app"),

		RedisAddr:        os.Getenv("REDIS_ADDR"),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantPort:       getInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "chat_replies"),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		RequestLimit:     getInt("USER_REQUEST_LIMIT", 100),

		RequestTimeout: time.Duration(getInt("REQUEST_TIMEOUT_SECONDS", 60)) * time.Second,
	}

	switch cfg.BackendMode {
	case BackendReasoningEngine:
		if cfg.ProjectID == "" || cfg.ReasoningEngineID == "" {
			return nil, fmt.Errorf("backend %q requires GOOGLE_CLOUD_PROJECT and REASONING_ENGINE_ID", cfg.BackendMode)
		}
	case BackendAgentServer:
		if cfg.AgentServerURL == "" {
			return nil, fmt.Errorf("backend %q requires AGENT_SERVER_URL", cfg.BackendMode)
		}
	default:
		return nil, fmt.Errorf("unknown BACKEND_MODE %q", cfg.BackendMode)
	}

	if cfg.ClassifierEnabled && cfg.ProjectID == "" {
		return nil, fmt.Errorf("MODEL_ARMOR_ENABLED requires GOOGLE_CLOUD_PROJECT")
	}

	return cfg, nil
}

// CacheEnabled reports whether the semantic reply cache is configured.
func (c *Config) CacheEnabled() bool { return c.QdrantHost != "" }

// RateLimitEnabled reports whether the per-user limiter is configured.
func (c *Config) RateLimitEnabled() bool { return c.RedisAddr != "" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func getBool(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}
