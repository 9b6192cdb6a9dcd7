// Package config reads the environment configuration surface of the client.
//
// Every value has a documented local-development fallback, so `snipctl`
// and the devserver start with zero configuration. A .env file in the
// working directory is loaded first when present; real environment
// variables always win over defaults.
package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Auth     AuthConfig
	Services ServicesConfig
	Dev      DevServerConfig
}

// AuthConfig is the OAuth2/OIDC provider surface. Username/Password exist
// for the test-only resource-owner flow and must never hold production
// credentials.
type AuthConfig struct {
	Domain       string
	ClientID     string
	ClientSecret string
	Audience     string
	Username     string
	Password     string
	// StaticToken bypasses the provider entirely when set (CI, scripting).
	StaticToken string
}

// ServicesConfig holds the base URLs of the backend services. Each URL is
// expected to carry its path prefix (e.g. ".../api") — request code never
// hard-codes a host or prefix.
type ServicesConfig struct {
	FrontendURL string
	BackendURL  string
	SnippetsURL string
	RunnerURL   string
}

// DevServerConfig configures the bundled local backend emulator.
type DevServerConfig struct {
	Port      int
	DBPath    string
	JWTSecret string
}

// Load reads configuration from the environment, after loading a .env file
// if one exists (ignored silently otherwise — production has no .env).
func Load(logger *slog.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	return &Config{
		Auth: AuthConfig{
			Domain:       getEnv("AUTH0_DOMAIN", "http://localhost:9000"),
			ClientID:     getEnv("AUTH0_CLIENT_ID", "snippet-searcher-cli"),
			ClientSecret: getEnv("AUTH0_CLIENT_SECRET", ""),
			Audience:     getEnv("AUTH0_AUDIENCE", "https://snippet-searcher.api"),
			Username:     getEnv("AUTH0_USERNAME", "test@gmail.com"),
			Password:     getEnv("AUTH0_PASSWORD", ""),
			StaticToken:  getEnv("ACCESS_TOKEN", ""),
		},
		Services: ServicesConfig{
			FrontendURL: getEnv("FRONTEND_URL", "https://ingsis25.duckdns.org"),
			BackendURL:  getEnv("BACKEND_URL", "https://ingsis25.duckdns.org/api"),
			SnippetsURL: getEnv("SNIPPETS_SERVICE_URL", "http://localhost:8001/api"),
			RunnerURL:   getEnv("RUNNER_SERVICE_URL", "http://localhost:8000/api"),
		},
		Dev: DevServerConfig{
			Port:      getEnvAsInt("DEVSERVER_PORT", 9000),
			DBPath:    getEnv("DEVSERVER_DB_PATH", "data/devserver.db"),
			JWTSecret: getEnv("DEVSERVER_JWT_SECRET", "local-development-secret-key"),
		},
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
