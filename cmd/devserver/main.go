// Command devserver runs a local, single-binary emulation of the snippet
// platform backends: snippet store, rule services, user directory, canned
// runner and an OAuth2 token endpoint. Point the client's service URLs at
// it and the whole stack works offline.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ingsis25/snippet-searcher/internal/config"
	"github.com/ingsis25/snippet-searcher/internal/devserver"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := config.Load(logger)

	seedPassword := cfg.Auth.Password
	if seedPassword == "" {
		// Without a configured password the seeded login still has to work.
		seedPassword = "local-dev-password"
		logger.Warn("AUTH0_PASSWORD not set, seeding development user with default password",
			slog.String("email", cfg.Auth.Username),
		)
	}

	dbDir := filepath.Dir(cfg.Dev.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", dbDir),
			slog.Any("error", err),
		)
		os.Exit(1)
	}

	srv, err := devserver.New(devserver.Config{
		Port:         cfg.Dev.Port,
		DBPath:       cfg.Dev.DBPath,
		JWTSecret:    cfg.Dev.JWTSecret,
		Audience:     cfg.Auth.Audience,
		SeedEmail:    cfg.Auth.Username,
		SeedPassword: seedPassword,
	}, logger)
	if err != nil {
		logger.Error("failed to create devserver", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("devserver error", slog.Any("error", err))
		os.Exit(1)
	}
}
