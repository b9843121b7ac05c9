package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile        string
	StorageDriver string
	MongoURI      string
	MongoDB       string

	AdminAddr string
	APIAddr   string
	BaseURL   string
	ClientURL string

	AuthSecret  string
	TokenExpiry time.Duration

	MediaDriver    string
	UploadsPath    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	AssistantProvider    string
	OpenAIKey            string
	OpenAIBaseURL        string
	OpenAIModel          string
	GeminiKey            string
	GeminiBaseURL        string
	GeminiModel          string
	OllamaBaseURL        string
	OllamaModel          string
	AssistantTemperature float64
	AssistantTimeout     time.Duration
	AssistantRetries     int

	RedisAddr             string
	RedisPassword         string
	SendRateLimit         int
	SendRateWindow        time.Duration
	SocketEventsPerSecond float64
	SocketEventBurst      int

	LogLevel  string
	LogFormat string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first; real environment variables win.
func Load(cliMode bool) (*Config, error) {
	_ = godotenv.Load(".env")

	p := parser{}
	cfg := &Config{
		DBFile:        getEnv("CHATIFY_DB", "chatify.db"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", "bbolt")),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getEnv("MONGO_DB", "chatify"),

		AdminAddr: getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:   getEnv("API_ADDR", ":8080"),
		BaseURL:   getEnv("BASE_URL", "http://localhost:8080"),
		ClientURL: os.Getenv("CLIENT_URL"),

		AuthSecret:  os.Getenv("AUTH_SECRET"),
		TokenExpiry: p.duration("TOKEN_EXPIRY", "168h"),

		MediaDriver:    strings.ToLower(getEnv("MEDIA_DRIVER", "local")),
		UploadsPath:    getEnv("UPLOADS_PATH", "uploads"),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "chatify"),
		MinioUseSSL:    p.bool("MINIO_USE_SSL", "false"),

		AssistantProvider:    strings.ToLower(getEnv("ASSISTANT_PROVIDER", "gemini")),
		OpenAIKey:            os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiKey:            os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-1.5-pro"),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "llama3.2:latest"),
		AssistantTemperature: p.float("ASSISTANT_TEMPERATURE", "0.7"),
		AssistantTimeout:     p.duration("ASSISTANT_TIMEOUT", "20s"),
		AssistantRetries:     p.int("ASSISTANT_RETRIES", "2"),

		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		SendRateLimit:         p.int("SEND_RATE_LIMIT", "30"),
		SendRateWindow:        p.duration("SEND_RATE_WINDOW", "10s"),
		SocketEventsPerSecond: p.float("SOCKET_EVENTS_PER_SECOND", "20"),
		SocketEventBurst:      p.int("SOCKET_EVENT_BURST", "40"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.Validate(cliMode); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate(cliMode bool) error {
	var errs []error
	if c.AuthSecret == "" && !cliMode {
		errs = append(errs, errors.New("AUTH_SECRET is required"))
	}
	if c.TokenExpiry <= 0 {
		errs = append(errs, errors.New("TOKEN_EXPIRY must be greater than 0"))
	}

	switch c.StorageDriver {
	case "bbolt":
	case "mongo":
		if c.MongoURI == "" && !cliMode {
			errs = append(errs, errors.New("MONGO_URI is required when STORAGE_DRIVER is mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}

	switch c.MediaDriver {
	case "local":
	case "minio":
		if c.MinioEndpoint == "" && !cliMode {
			errs = append(errs, errors.New("MINIO_ENDPOINT is required when MEDIA_DRIVER is minio"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown MEDIA_DRIVER %q", c.MediaDriver))
	}

	switch c.AssistantProvider {
	case "openai", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("unknown ASSISTANT_PROVIDER %q", c.AssistantProvider))
	}

	if c.AssistantTimeout <= 0 {
		errs = append(errs, errors.New("ASSISTANT_TIMEOUT must be greater than 0"))
	}
	if c.AssistantRetries < 0 {
		errs = append(errs, errors.New("ASSISTANT_RETRIES must not be negative"))
	}
	if c.SendRateLimit <= 0 || c.SendRateWindow <= 0 {
		errs = append(errs, errors.New("SEND_RATE_LIMIT and SEND_RATE_WINDOW must be greater than 0"))
	}
	if c.SocketEventsPerSecond <= 0 || c.SocketEventBurst <= 0 {
		errs = append(errs, errors.New("SOCKET_EVENTS_PER_SECOND and SOCKET_EVENT_BURST must be greater than 0"))
	}

	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// parser reads typed variables and keeps the first parse error.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) duration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func (p *parser) int(key, fallback string) int {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return n
}

func (p *parser) float(key, fallback string) float64 {
	f, err := strconv.ParseFloat(getEnv(key, fallback), 64)
	if err != nil {
		p.fail(key, err)
	}
	return f
}

func (p *parser) bool(key, fallback string) bool {
	b, err := strconv.ParseBool(getEnv(key, fallback))
	if err != nil {
		p.fail(key, err)
	}
	return b
}
