package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Engine tuning defaults. All of them can be overridden through the
// environment; call sites only ever read the Config fields.
const (
	defaultMinClipDuration  = 0.35  // seconds below which a capture is ambient noise
	defaultMinClipRMS       = 0.008 // loudness floor for the signal gate
	defaultPromptHitWeight  = 0.2   // token-hit weight when ranking facts for the prompt
	defaultHighlightWeight  = 0.15  // token-hit weight for UI memory highlighting
	defaultFactLimit        = 4
	defaultHistoryWindow    = 8
	defaultAutoLoopDebounce = 350 * time.Millisecond
	defaultVoiceID          = "21m00Tcm4TlvDq8ikWAM" // ElevenLabs "Rachel"
)

// Config holds all server configuration.
type Config struct {
	HTTPAddress string
	JWTSecret   string
	DBPath      string

	GeminiAPIKey     string
	ElevenLabsAPIKey string
	VoiceID          string
	Language         string

	// Signal gate thresholds
	MinClipDuration float64
	MinClipRMS      float64

	// Memory ranking
	PromptHitWeight   float64
	HighlightWeight   float64
	FactLimit         int
	HistoryWindow     int

	// Auto-loop
	AutoLoopDebounce time.Duration
}

// Load reads .env (if present) and the environment, applying defaults.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddress:      getEnv("HTTP_ADDRESS", ":8080"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		DBPath:           getEnv("ORB_DB_PATH", "conversations.db"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		ElevenLabsAPIKey: os.Getenv("ELEVENLABS_API_KEY"),
		VoiceID:          getEnv("ORB_VOICE_ID", defaultVoiceID),
		Language:         getEnv("ORB_LANGUAGE", "en-US"),
		MinClipDuration:  getEnvFloat("ORB_MIN_CLIP_DURATION", defaultMinClipDuration),
		MinClipRMS:       getEnvFloat("ORB_MIN_CLIP_RMS", defaultMinClipRMS),
		PromptHitWeight:  getEnvFloat("ORB_PROMPT_HIT_WEIGHT", defaultPromptHitWeight),
		HighlightWeight:  getEnvFloat("ORB_HIGHLIGHT_HIT_WEIGHT", defaultHighlightWeight),
		FactLimit:        getEnvInt("ORB_FACT_LIMIT", defaultFactLimit),
		HistoryWindow:    getEnvInt("ORB_HISTORY_WINDOW", defaultHistoryWindow),
		AutoLoopDebounce: getEnvDuration("ORB_AUTOLOOP_DEBOUNCE", defaultAutoLoopDebounce),
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
