// Package gateway exposes the companion's flows over HTTP for the app
// shell: chat, speech practice, stories, and session state.
package gateway

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway's runtime configuration, loaded from environment
// variables with the PIP_ prefix.
type Config struct {
	Addr string

	GeminiAPIKey  string
	GeminiBaseURL string

	ChatModel   string
	SpeechModel string
	SpeechVoice string

	CartesiaAPIKey string
	CartesiaVoice  string

	DBPath string

	MaxBodyBytes int64

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	HandlerTimeout      time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv reads configuration, applying defaults for everything but
// the Gemini API key.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("PIP_ADDR", ":8080"),
		GeminiAPIKey:        strings.TrimSpace(os.Getenv("PIP_GEMINI_API_KEY")),
		GeminiBaseURL:       envOr("PIP_GEMINI_BASE_URL", ""),
		ChatModel:           envOr("PIP_CHAT_MODEL", "gemini-2.5-flash"),
		SpeechModel:         envOr("PIP_SPEECH_MODEL", "gemini-2.5-flash-preview-tts"),
		SpeechVoice:         envOr("PIP_SPEECH_VOICE", "Leda"),
		CartesiaAPIKey:      strings.TrimSpace(os.Getenv("PIP_CARTESIA_API_KEY")),
		CartesiaVoice:       envOr("PIP_CARTESIA_VOICE", ""),
		DBPath:              envOr("PIP_DB_PATH", "pip.db"),
		MaxBodyBytes:        envInt64Or("PIP_MAX_BODY_BYTES", 16<<20), // recordings ride in request bodies
		ReadHeaderTimeout:   envDurationOr("PIP_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("PIP_READ_TIMEOUT", 60*time.Second),
		HandlerTimeout:      envDurationOr("PIP_HANDLER_TIMEOUT", 2*time.Minute),
		ShutdownGracePeriod: envDurationOr("PIP_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("PIP_GEMINI_API_KEY is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		return Config{}, fmt.Errorf("PIP_MAX_BODY_BYTES must be > 0")
	}
	if cfg.HandlerTimeout <= 0 {
		return Config{}, fmt.Errorf("PIP_HANDLER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("PIP_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
