package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL     string
	CacheDBPath    string
	PhotoPath      string
	PhotoMaxDim    int
	HTTPTimeout    time.Duration
	CameraDebounce time.Duration
	LogLevel       string
	LogFormat      string
	LogFile        string
	MetricsAddr    string
	VisionBackend  string
	ClaudeAPIKey   string
	ClaudeModel    string
	OllamaHost     string
	OllamaModel    string
}

// Load reads the environment. A .env file in the working directory, if
// present, fills in variables that are not already set.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8000"),
		CacheDBPath:    getEnv("CACHE_DB_PATH", "switchmap.db"),
		PhotoPath:      getEnv("PHOTO_STAGING_PATH", "photos"),
		PhotoMaxDim:    getInt("PHOTO_MAX_DIMENSION", 1600),
		HTTPTimeout:    getDuration("HTTP_TIMEOUT", 30*time.Second),
		CameraDebounce: getDuration("CAMERA_DEBOUNCE", 100*time.Millisecond),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		LogFile:        getEnv("LOG_FILE", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
		VisionBackend:  getEnv("VISION_BACKEND", "none"),
		ClaudeAPIKey:   getEnv("CLAUDE_API_KEY", ""),
		ClaudeModel:    getEnv("CLAUDE_MODEL", "claude-sonnet-4-5"),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "moondream"),
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.VisionBackend {
	case "none", "ollama":
	case "claude":
		if c.ClaudeAPIKey == "" {
			return fmt.Errorf("CLAUDE_API_KEY is required when VISION_BACKEND=claude")
		}
	default:
		return fmt.Errorf("unknown VISION_BACKEND %q", c.VisionBackend)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.PhotoMaxDim <= 0 {
		return fmt.Errorf("PHOTO_MAX_DIMENSION must be positive")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return v
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
