// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	Addr        string
	DatabaseURL string

	SpotifyID       string
	SpotifySecret   string
	SpotifyRedirect string

	LogLevel string
}

// Load reads configuration from a .env file if present and the process
// environment. Missing required values are an error.
func Load() (*Config, error) {
	// A .env file is optional; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getEnv("ADDR", "127.0.0.1:8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SpotifyID:       os.Getenv("SPOTIFY_ID"),
		SpotifySecret:   os.Getenv("SPOTIFY_SECRET"),
		SpotifyRedirect: getEnv("SPOTIFY_REDIRECT_URI", "http://127.0.0.1:8080/callback"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SpotifyID == "" || cfg.SpotifySecret == "" {
		return nil, fmt.Errorf("SPOTIFY_ID and SPOTIFY_SECRET are required")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
