package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// OpenAI (chat model + Whisper transcription)
	OpenAIKey string

	// Splitwise credentials. All optional at startup; the agent reports
	// "not configured" until one of them is supplied here or at runtime.
	SplitwiseAPIKey         string
	SplitwiseConsumerKey    string
	SplitwiseConsumerSecret string
	SplitwiseRedirectURI    string

	// Web Server
	WebBind      string
	WebUIBaseURL string

	// Session
	JWTSecret string

	// Optional action audit log
	DatabaseURL string

	// Optional Discord surface
	DiscordToken string
}

func Load() (*Config, error) {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIKey:               os.Getenv("OPENAI_API_KEY"),
		SplitwiseAPIKey:         os.Getenv("SPLITWISE_API_KEY"),
		SplitwiseConsumerKey:    os.Getenv("SPLITWISE_CONSUMER_KEY"),
		SplitwiseConsumerSecret: os.Getenv("SPLITWISE_CONSUMER_SECRET"),
		SplitwiseRedirectURI:    getEnvDefault("SPLITWISE_REDIRECT_URI", "http://localhost:3000/api/auth/callback"),
		WebBind:                 getEnvDefault("WEB_BIND", "0.0.0.0:3000"),
		JWTSecret:               getEnvDefault("JWT_SECRET", "dev-only-change-me"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		DiscordToken:            os.Getenv("DISCORD_TOKEN"),
	}

	// Extract base URL from redirect URI
	cfg.WebUIBaseURL = extractBaseURL(cfg.SplitwiseRedirectURI)

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func extractBaseURL(redirectURI string) string {
	// e.g., "http://localhost:3000/api/auth/callback" -> "http://localhost:3000"
	parsed, err := url.Parse(redirectURI)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "http://localhost:3000"
	}

	return fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
}
