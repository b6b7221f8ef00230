package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	Auth        AuthConfig
	Provider    ProviderConfig
	Generation  GenerationConfig
	Artifact    ArtifactConfig
}

type AuthConfig struct {
	JWTSecret string
}

type ProviderConfig struct {
	GeminiAPIKey      string
	GeminiModel       string
	OpenAICompatKey   string
	OpenAICompatURL   string
	OpenAICompatModel string
}

type GenerationConfig struct {
	VariantCount  int
	StreamTimeout time.Duration
}

type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

func (c ArtifactConfig) CanUseS3() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	port := flag.String("port", ":8082", "server port")
	flag.Parse()

	if envPort := os.Getenv("PORT"); envPort != "" {
		if strings.HasPrefix(envPort, ":") {
			*port = envPort
		} else {
			*port = ":" + envPort
		}
	}

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "local"
	}

	return &Config{
		Port:        *port,
		Env:         env,
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Auth: AuthConfig{
			JWTSecret: strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")),
		},
		Provider:   loadProviderConfig(),
		Generation: loadGenerationConfig(),
		Artifact:   loadArtifactConfig(env),
	}, nil
}

func loadProviderConfig() ProviderConfig {
	return ProviderConfig{
		GeminiAPIKey:      strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:       firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.0-flash"),
		OpenAICompatKey:   strings.TrimSpace(os.Getenv("OPENAI_COMPAT_API_KEY")),
		OpenAICompatURL:   strings.TrimSpace(os.Getenv("OPENAI_COMPAT_BASE_URL")),
		OpenAICompatModel: firstNonEmpty(strings.TrimSpace(os.Getenv("OPENAI_COMPAT_MODEL")), "gpt-4o-mini"),
	}
}

func loadGenerationConfig() GenerationConfig {
	count := 4
	if raw := strings.TrimSpace(os.Getenv("GENERATION_VARIANT_COUNT")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			count = v
		}
	}
	timeout := 120 * time.Second
	if raw := strings.TrimSpace(os.Getenv("GENERATION_STREAM_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}
	return GenerationConfig{
		VariantCount:  count,
		StreamTimeout: timeout,
	}
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := resolveArtifactEndpoint(env)
	return ArtifactConfig{
		Enabled:   strings.EqualFold(strings.TrimSpace(env), "local") || endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_S3_BUCKET")), "variantforge-artifacts"),
		UseSSL:    resolveArtifactUseSSL(env),
	}
}

func resolveArtifactEndpoint(env string) string {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return firstNonEmpty(strings.TrimSpace(os.Getenv("ARTIFACT_MINIO_ENDPOINT")), "minio:9000")
	}
	return strings.TrimSpace(os.Getenv("ARTIFACT_S3_ENDPOINT"))
}

func resolveArtifactUseSSL(env string) bool {
	if strings.EqualFold(strings.TrimSpace(env), "local") {
		return false
	}
	raw := strings.TrimSpace(os.Getenv("ARTIFACT_S3_USE_SSL"))
	if raw == "" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
