package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string

	Gateway GatewayConfig
	Logging LoggingConfig

	// Optional backing stores. An empty value disables the store and the
	// server falls back to in-process defaults.
	DBURL         string
	MongoURI      string
	MongoDatabase string
	RedisAddr     string

	JWTSecret    string
	AuthRequired bool

	// CorpusDir holds the per-persona CSV files produced by the offline
	// build_corpus script.
	CorpusDir string
}

type GatewayConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	// Mock replaces the hosted model with a deterministic echo client.
	Mock bool
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

func Load() (*Config, error) {
	once.Do(func() {
		if err := loadEnvFiles(); err != nil {
			loadErr = fmt.Errorf("load env files: %w", err)
			return
		}

		base := strings.TrimSpace(os.Getenv("LLM_API_BASE"))
		if base == "" {
			base = strings.TrimSpace(os.Getenv("OPENAI_API_BASE"))
		}
		if base == "" {
			base = "https://api.openai.com/v1"
		}

		apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
		if apiKey == "" {
			apiKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		}

		cfg = &Config{
			ServerAddr: getEnv("SERVER_ADDR", ":8000"),
			Gateway: GatewayConfig{
				BaseURL:     strings.TrimRight(base, "/"),
				APIKey:      apiKey,
				Model:       getEnv("LLM_MODEL", "gpt-3.5-turbo"),
				Temperature: parseFloat(os.Getenv("LLM_TEMPERATURE"), 0.7),
				Mock:        parseBool(os.Getenv("MOCK_LLM")),
			},
			Logging: LoggingConfig{
				Level:        getEnv("LOG_LEVEL", "info"),
				Encoding:     getEnv("LOG_ENCODING", "console"),
				Development:  parseBool(os.Getenv("LOG_DEVELOPMENT")),
				EnableCaller: parseBool(os.Getenv("LOG_CALLER")),
				ServiceName:  getEnv("SERVICE_NAME", "castmind"),
			},
			DBURL:         strings.TrimSpace(os.Getenv("DB_URL")),
			MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
			MongoDatabase: getEnv("MONGO_DATABASE", "castmind"),
			RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			JWTSecret:     getEnv("JWT_SECRET", "castmind-dev-secret"),
			AuthRequired:  parseBool(os.Getenv("AUTH_REQUIRED")),
			CorpusDir:     getEnv("CORPUS_DIR", "data"),
		}

		loadErr = cfg.validate()
	})

	return cfg, loadErr
}

func loadEnvFiles() error {
	if err := godotenv.Load(); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			// missing .env is fine, environment variables may be supplied externally
			return nil
		}

		return err
	}

	return nil
}

func (c *Config) validate() error {
	if !c.Gateway.Mock && c.Gateway.APIKey == "" {
		return errors.New("LLM_API_KEY is required unless MOCK_LLM=true")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	return strings.TrimSpace(fallback)
}

func parseBool(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}

	return value
}

func parseFloat(raw string, fallback float64) float64 {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || value < 0 {
		return fallback
	}

	return value
}
