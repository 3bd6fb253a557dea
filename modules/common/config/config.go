package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Generation backends
const (
	BackendHuggingFace = "huggingface"
	BackendImagen      = "imagen"
)

// History backends
const (
	HistoryMemory = "memory"
	HistoryRedis  = "redis"
)

const (
	DefaultHuggingFaceModel = "black-forest-labs/FLUX.1-dev"
	DefaultImagenModel      = "imagen-3.0-generate-002"
	DefaultHFInferenceURL   = "https://router.huggingface.co/hf-inference/models"
)

// Config - every setting read from the environment
type Config struct {
	// Server
	Port     string
	LogLevel string

	// Generation
	GenerationBackend string
	HuggingFaceToken  string
	HFInferenceURL    string
	GeminiAPIKey      string
	GCPProject        string
	GCPLocation       string
	ModelID           string
	GenerationTimeout time.Duration

	// History / sessions
	HistoryLimit       int
	HistoryBackend     string
	SessionIdleTimeout time.Duration
	SessionMaxAge      time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// EnvFileLoaded reports whether a .env file was found.
	EnvFileLoaded bool
}

// ConfigurationError is fatal to startup: the server never listens without
// a usable credential and consistent settings.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Message)
}

// LoadConfig - load .env (if present) and the process environment.
// envFile may be empty, in which case ./.env is tried.
func LoadConfig(envFile string) (*Config, error) {
	var loadErr error
	if envFile != "" {
		loadErr = godotenv.Load(envFile)
	} else {
		loadErr = godotenv.Load()
	}

	backend := strings.ToLower(getEnv("GENERATION_BACKEND", BackendHuggingFace))

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		GenerationBackend: backend,
		HuggingFaceToken:  getEnv("HUGGINGFACE_TOKEN", ""),
		HFInferenceURL:    strings.TrimRight(getEnv("HF_INFERENCE_URL", DefaultHFInferenceURL), "/"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GCPProject:        getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GCPLocation:       getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		ModelID:           getEnv("MODEL_ID", defaultModel(backend)),

		HistoryBackend: strings.ToLower(getEnv("HISTORY_BACKEND", HistoryMemory)),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		EnvFileLoaded: loadErr == nil,
	}

	var err error
	if cfg.GenerationTimeout, err = getDuration("GENERATION_TIMEOUT", 120*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTimeout, err = getDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour); err != nil {
		return nil, err
	}
	if cfg.SessionMaxAge, err = getDuration("SESSION_MAX_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.HistoryLimit, err = getInt("HISTORY_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RedisUseTLS, err = getBool("REDIS_USE_TLS", false); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LogSummary writes the non-secret settings once at startup.
func (c *Config) LogSummary() {
	if !c.EnvFileLoaded {
		log.Warn().Msg("⚠️  .env file not found, using environment variables")
	}
	log.Info().
		Str("backend", c.GenerationBackend).
		Str("model", c.ModelID).
		Dur("timeout", c.GenerationTimeout).
		Str("history", c.HistoryBackend).
		Int("history_limit", c.HistoryLimit).
		Dur("session_idle", c.SessionIdleTimeout).
		Msg("✅ Configuration loaded successfully")
	if c.HistoryBackend == HistoryRedis {
		log.Info().Str("addr", c.GetRedisAddr()).Bool("tls", c.RedisUseTLS).Msg("   Redis history backend")
	}
}

// validate - required credentials and enum settings
func (c *Config) validate() error {
	switch c.GenerationBackend {
	case BackendHuggingFace:
		if c.HuggingFaceToken == "" {
			return &ConfigurationError{Key: "HUGGINGFACE_TOKEN", Message: "is required (API token not found)"}
		}
	case BackendImagen:
		if c.GeminiAPIKey == "" && c.GCPProject == "" {
			return &ConfigurationError{Key: "GEMINI_API_KEY", Message: "or GOOGLE_CLOUD_PROJECT is required for the imagen backend"}
		}
	default:
		return &ConfigurationError{Key: "GENERATION_BACKEND", Message: fmt.Sprintf("must be %q or %q, got %q", BackendHuggingFace, BackendImagen, c.GenerationBackend)}
	}

	switch c.HistoryBackend {
	case HistoryMemory, HistoryRedis:
	default:
		return &ConfigurationError{Key: "HISTORY_BACKEND", Message: fmt.Sprintf("must be %q or %q, got %q", HistoryMemory, HistoryRedis, c.HistoryBackend)}
	}

	if c.HistoryLimit < 1 {
		return &ConfigurationError{Key: "HISTORY_LIMIT", Message: "must be at least 1"}
	}
	if c.GenerationTimeout <= 0 {
		return &ConfigurationError{Key: "GENERATION_TIMEOUT", Message: "must be positive"}
	}
	return nil
}

// GetRedisAddr - host:port for the Redis client
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func defaultModel(backend string) string {
	if backend == BackendImagen {
		return DefaultImagenModel
	}
	return DefaultHuggingFaceModel
}

// getEnv - env var with a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Message: fmt.Sprintf("is not a duration: %q", raw)}
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ConfigurationError{Key: key, Message: fmt.Sprintf("is not an integer: %q", raw)}
	}
	return n, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ConfigurationError{Key: key, Message: fmt.Sprintf("is not a boolean: %q", raw)}
	}
	return b, nil
}
