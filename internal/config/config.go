package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	LogLevel      string
	PublicBaseURL string
	HTTPTimeout   time.Duration

	StorageBackend  string
	UploadsDir      string
	GCSBucket       string
	GoogleCredsJSON string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OllamaURL     string
	GeminiAPIKey  string

	VisionProvider    string
	VisionModel       string
	CleanupProvider   string
	CleanupModel      string
	RecommendProvider string
	RecommendModel    string
	OCRWorkers        int
	// OCRRequestsPerSecond paces Vision API calls; 0 disables pacing
	OCRRequestsPerSecond int

	DatabaseURL string

	ScanLimit          int
	ScanWindow         time.Duration
	IPRateLimit        int
	CORSAllowedOrigins []string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8888"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8888"), "/"),
		HTTPTimeout:   getEnvDuration("HTTP_TIMEOUT", 60*time.Second),

		StorageBackend:  strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		UploadsDir:      getEnv("UPLOADS_DIR", "uploads"),
		GCSBucket:       getEnv("GCS_BUCKET", ""),
		GoogleCredsJSON: getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", ""),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),

		VisionProvider:       strings.ToLower(getEnv("VISION_PROVIDER", "openai")),
		VisionModel:          getEnv("VISION_MODEL", "gpt-4o"),
		CleanupProvider:      strings.ToLower(getEnv("CLEANUP_PROVIDER", "openai")),
		CleanupModel:         getEnv("CLEANUP_MODEL", "gpt-3.5-turbo"),
		RecommendProvider:    strings.ToLower(getEnv("RECOMMEND_PROVIDER", "openai")),
		RecommendModel:       getEnv("RECOMMEND_MODEL", "gpt-3.5-turbo"),
		OCRWorkers:           getEnvInt("OCR_WORKERS", 4),
		OCRRequestsPerSecond: getEnvInt("OCR_REQUESTS_PER_SECOND", 10),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ScanLimit:          getEnvInt("SCAN_LIMIT", 5),
		ScanWindow:         getEnvDuration("SCAN_WINDOW", time.Hour),
		IPRateLimit:        getEnvInt("IP_RATE_LIMIT", 120),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

// ParseLogLevel maps a level name to slog, defaulting to info
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("Ignoring invalid integer setting", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("Ignoring invalid duration setting", "key", key, "value", v)
		return fallback
	}
	return d
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
