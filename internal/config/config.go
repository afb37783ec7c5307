package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	STT           STTConfig
	Transcription TranscriptionConfig
	Cache         CacheConfig
	Jobs          JobsConfig
	Storage       StorageConfig
	Webhook       WebhookConfig
	Kafka         KafkaConfig
	RateLimit     RateLimitConfig
	Log           LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL            string
	MaxConns       int
	MinConns       int
	MigrationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	APIKeys      []string
	APIKeyHeader string
	JWTSecret    string
}

type STTConfig struct {
	Backend        string // "openai", "local" or "google"
	Model          string
	OpenAIKey      string
	OpenAIBaseURL  string
	LocalBaseURL   string // default: "http://localhost:8178/v1"
	GoogleProject  string
	GoogleCredFile string
	Probe          bool
	Timeout        time.Duration
}

type TranscriptionConfig struct {
	MaxUploadBytes int64
	TempDir        string
	MaxConcurrency int
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

type JobsConfig struct {
	TTL         time.Duration
	MaxRetry    int
	Timeout     time.Duration
	Concurrency int
}

type StorageConfig struct {
	Backend     string // "local" or "supabase"
	LocalDir    string
	SupabaseURL string
	SupabaseKey string
	Bucket      string
}

type WebhookConfig struct {
	Secret  string
	Timeout time.Duration
}

type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	Topic     string
	Principal string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// GoogleInlineAudioLimit is the largest audio Cloud Speech accepts as inline content.
const GoogleInlineAudioLimit = 10 << 20

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	shutdownTimeout, err := getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	probe, err := getEnvBool("STT_PROBE", true)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_PROBE: %w", err)
	}

	sttTimeout, err := getEnvDuration("STT_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_TIMEOUT: %w", err)
	}

	backend := getEnv("STT_BACKEND", "openai")

	defaultUpload := 25 << 20
	if backend == "google" {
		defaultUpload = GoogleInlineAudioLimit
	}
	maxUpload, err := getEnvInt("MAX_UPLOAD_BYTES", defaultUpload)
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %w", err)
	}

	maxConcurrency, err := getEnvInt("STT_MAX_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid STT_MAX_CONCURRENCY: %w", err)
	}

	cacheEnabled, err := getEnvBool("CACHE_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_ENABLED: %w", err)
	}

	cacheTTL, err := getEnvDuration("CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}

	jobTTL, err := getEnvDuration("JOB_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TTL: %w", err)
	}

	jobRetry, err := getEnvInt("JOB_MAX_RETRY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_MAX_RETRY: %w", err)
	}

	jobTimeout, err := getEnvDuration("JOB_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}

	workerConcurrency, err := getEnvInt("WORKER_CONCURRENCY", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %w", err)
	}

	webhookTimeout, err := getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	kafkaEnabled, err := getEnvBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, fmt.Errorf("invalid KAFKA_ENABLED: %w", err)
	}

	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            port,
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			ShutdownTimeout: shutdownTimeout,
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConns:       maxConns,
			MinConns:       minConns,
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			APIKeys:      getEnvList("API_KEYS", nil),
			APIKeyHeader: getEnv("API_KEY_HEADER", "X-API-Key"),
			JWTSecret:    getEnv("JWT_SECRET", ""),
		},
		STT: STTConfig{
			Backend:        backend,
			Model:          getEnv("WHISPER_MODEL", defaultModel(backend)),
			OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:  getEnv("STT_OPENAI_BASE_URL", ""),
			LocalBaseURL:   getEnv("STT_LOCAL_BASE_URL", "http://localhost:8178/v1"),
			GoogleProject:  getEnv("GOOGLE_CLOUD_PROJECT", ""),
			GoogleCredFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			Probe:          probe,
			Timeout:        sttTimeout,
		},
		Transcription: TranscriptionConfig{
			MaxUploadBytes: int64(maxUpload),
			TempDir:        getEnv("TRANSCRIBE_TEMP_DIR", os.TempDir()),
			MaxConcurrency: maxConcurrency,
		},
		Cache: CacheConfig{
			Enabled: cacheEnabled,
			TTL:     cacheTTL,
		},
		Jobs: JobsConfig{
			TTL:         jobTTL,
			MaxRetry:    jobRetry,
			Timeout:     jobTimeout,
			Concurrency: workerConcurrency,
		},
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "local"),
			LocalDir:    getEnv("STORAGE_LOCAL_DIR", "data/uploads"),
			SupabaseURL: getEnv("SUPABASE_URL", ""),
			SupabaseKey: getEnv("SUPABASE_SERVICE_KEY", ""),
			Bucket:      getEnv("STORAGE_BUCKET", "audio"),
		},
		Webhook: WebhookConfig{
			Secret:  getEnv("WEBHOOK_SECRET", ""),
			Timeout: webhookTimeout,
		},
		Kafka: KafkaConfig{
			Enabled:   kafkaEnabled,
			Brokers:   getEnvList("KAFKA_BROKERS", nil),
			Topic:     getEnv("KAFKA_TOPIC", "transcriptions.completed"),
			Principal: getEnv("KAFKA_PRINCIPAL", "svc-whisperapi"),
		},
		RateLimit: RateLimitConfig{
			RPS:   rps,
			Burst: burst,
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	return cfg, nil
}

// LoadDotEnv copies KEY=VALUE pairs from ENV_FILE (default .env) into the process
// environment. Variables that are already set are kept; a missing file is ignored.
func LoadDotEnv() error {
	path := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) Validate() error {
	var problems []string
	switch c.STT.Backend {
	case "openai":
		if c.STT.OpenAIKey == "" && c.STT.OpenAIBaseURL == "" {
			problems = append(problems, "OPENAI_API_KEY or STT_OPENAI_BASE_URL required for openai backend")
		}
	case "local":
		if c.STT.LocalBaseURL == "" {
			problems = append(problems, "STT_LOCAL_BASE_URL required for local backend")
		}
	case "google":
		if c.STT.GoogleProject == "" {
			problems = append(problems, "GOOGLE_CLOUD_PROJECT required for google backend")
		}
		if c.Transcription.MaxUploadBytes > GoogleInlineAudioLimit {
			problems = append(problems, fmt.Sprintf("MAX_UPLOAD_BYTES must not exceed %d for google backend", GoogleInlineAudioLimit))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown STT_BACKEND %q", c.STT.Backend))
	}
	if c.Transcription.MaxUploadBytes <= 0 {
		problems = append(problems, "MAX_UPLOAD_BYTES must be positive")
	}
	if c.Transcription.MaxConcurrency <= 0 {
		problems = append(problems, "STT_MAX_CONCURRENCY must be positive")
	}
	if c.Storage.Backend == "supabase" && (c.Storage.SupabaseURL == "" || c.Storage.SupabaseKey == "") {
		problems = append(problems, "SUPABASE_URL and SUPABASE_SERVICE_KEY required for supabase storage")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func defaultModel(backend string) string {
	switch backend {
	case "local":
		return "base"
	case "google":
		return "latest_long"
	default:
		return "whisper-1"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return time.ParseDuration(v)
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
