package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	ProviderGroq   = "groq"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	DatabaseURL string `validate:"required"`
	SslCertPath string
	Port        string `validate:"required,numeric"`

	JWTSecret string        `validate:"required,min=16"`
	TokenTTL  time.Duration `validate:"min=1m"`

	LLMProvider       string        `validate:"oneof=groq openai gemini"`
	LLMAPIKey         string
	LLMBaseURL        string        `validate:"omitempty,url"`
	CompletionModel   string        `validate:"required"`
	CompletionTimeout time.Duration `validate:"min=1s,max=10m"`
	MaxContextRunes   int           `validate:"min=0"`

	FreeTierBotLimit int      `validate:"min=1"`
	MaxUploadMB      int      `validate:"min=1,max=200"`
	AllowedOrigins   []string `validate:"min=1"`
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Only enable it
	// behind a reverse proxy that overwrites those headers.
	TrustProxy       bool

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`
}

// LoadConfig loads the environment variables (and .env when present) and returns a validated config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGroq))

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		Port:        getEnv("PORT", "8080"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 7*24*time.Hour),

		LLMProvider:       provider,
		LLMAPIKey:         providerAPIKey(provider),
		LLMBaseURL:        getEnv("LLM_BASE_URL", ""),
		CompletionModel:   getEnv("LLM_MODEL", defaultModel(provider)),
		CompletionTimeout: getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		MaxContextRunes:   getEnvInt("MAX_CONTEXT_RUNES", 0),

		FreeTierBotLimit: getEnvInt("FREE_TIER_BOT_LIMIT", 3),
		MaxUploadMB:      getEnvInt("MAX_UPLOAD_MB", 20),
		AllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		TrustProxy:       getEnvBool("TRUST_PROXY_HEADERS", false),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ArchiveEnabled reports whether uploaded source documents should be archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != "" && c.BucketName != ""
}

// MaxUploadBytes is the multipart body ceiling for bot creation.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func providerAPIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return getEnv("OPENAI_API_KEY", "")
	case ProviderGemini:
		return getEnv("GEMINI_API_KEY", "")
	default:
		return getEnv("GROQ_API_KEY", "")
	}
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderGemini:
		return "gemini-1.5-flash"
	default:
		return "llama-3.3-70b-versatile"
	}
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
