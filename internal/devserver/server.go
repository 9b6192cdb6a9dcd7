package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Config holds the emulator's settings.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	Audience  string

	// SeedEmail/SeedPassword are the development login. Seeding is skipped
	// when the email is empty.
	SeedEmail    string
	SeedPassword string
}

// Server owns the router, the store and the listener lifecycle.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	store  *Store
}

// New assembles the whole emulator: store, token service, handlers, routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	store, err := NewStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if cfg.SeedEmail != "" {
		if err := store.Seed(context.Background(), cfg.SeedEmail, cfg.SeedPassword); err != nil {
			store.Close()
			return nil, err
		}
	}

	tokens, err := NewTokenService(cfg.JWTSecret, cfg.Audience)
	if err != nil {
		store.Close()
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.routes(NewAPI(store, tokens, logger), tokens)
	return s, nil
}

func (s *Server) routes(api *API, tokens *TokenService) {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Post("/oauth/token", api.handleToken)

	// Everything the client reaches lives under /api, matching the reverse
	// proxy prefix the deployed services sit behind.
	r.Route("/api", func(r chi.Router) {
		r.Get("/languages/all", api.handleListLanguages)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth(tokens, s.logger))

			r.Get("/snippets/user", api.handleListSnippets)
			r.Post("/snippets", api.handleCreateSnippet)
			r.Get("/snippets/{id}", api.handleGetSnippet)
			r.Put("/snippets/{id}", api.handleUpdateSnippet)
			r.Post("/snippets/delete/{id}", api.handleDeleteSnippet)
			r.Post("/snippets/share/{id}", api.handleShareSnippet)
			r.Post("/snippets/{id}/check-owner", api.handleCheckOwner)
			r.Get("/snippets/{id}/download", api.handleDownloadSnippet)
			r.Post("/snippets/run/{id}/format", api.handleFormatSnippet)

			r.Get("/rules/format", api.handleGetRules("format"))
			r.Post("/rules/format", api.handleModifyRules("format"))
			r.Get("/rules/lint", api.handleGetRules("lint"))
			r.Post("/rules/lint", api.handleModifyRules("lint"))

			r.Get("/tests/snippet/{id}", api.handleListTestCases)
			r.Post("/tests/snippet/{id}", api.handleCreateTestCase)
			r.Delete("/tests/{id}", api.handleDeleteTestCase)
			r.Post("/tests/{id}/run", api.handleRunTestCase)

			r.Get("/auth0/users", api.handleListUsers)

			r.Post("/printscript/interpret", api.handleInterpret)
		})
	})
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully and closes the store.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", slog.Int("port", s.config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.store.Close()
		return fmt.Errorf("devserver: %w", err)
	case sig := <-stop:
		s.logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		s.store.Close()
		return fmt.Errorf("devserver: shutdown: %w", err)
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("devserver: closing store: %w", err)
	}
	return nil
}
