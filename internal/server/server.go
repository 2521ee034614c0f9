// Package server wires the HTTP server, router, and route definitions.
//
// This is the composition root: the database, services, and handlers are
// all constructed here and connected through their interfaces. main.go
// only reads configuration and calls New/Start.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nvoropaev/movielog/internal/auth"
	"github.com/nvoropaev/movielog/internal/handler"
	"github.com/nvoropaev/movielog/internal/middleware"
	sqliteRepo "github.com/nvoropaev/movielog/internal/repository/sqlite"
	"github.com/nvoropaev/movielog/internal/service"
	"github.com/nvoropaev/movielog/internal/storage"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port      int
	DBPath    string
	JWTSecret string
	TokenTTL  time.Duration
	PosterDir string
}

// Server owns the router and the resources that outlive a single request.
// The database connection is closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New builds the full dependency chain: database, token and password
// services, domain services, handlers, and routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures middleware and mounts the API.
//
// Middleware order: RequestID and RealIP first so later middleware sees
// them, Recoverer before the logger so a panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	posters, err := storage.NewFilePosterStore(s.config.PosterDir)
	if err != nil {
		return fmt.Errorf("creating poster store: %w", err)
	}

	// The single sqlite.DB value satisfies every repository interface,
	// so it is passed wherever a repository is needed.
	catalogSvc := service.NewCatalogService(s.db, s.db, s.db, s.db, posters, s.logger)
	tagSvc := service.NewTagService(s.db, s.logger)
	feedSvc := service.NewNotificationService(s.db, s.db, s.db, s.logger)
	userSvc := service.NewUserService(s.db, s.db, s.logger)
	authSvc := service.NewAuthService(s.db, passwords, tokens, s.logger)
	profileSvc := service.NewProfileService(s.db, passwords, s.logger)

	movies := handler.NewMovieHandler(catalogSvc, s.logger)
	tags := handler.NewTagHandler(tagSvc, s.logger)
	feed := handler.NewNotificationHandler(feedSvc, s.logger)
	users := handler.NewUserHandler(userSvc, s.logger)
	authH := handler.NewAuthHandler(authSvc, s.logger)
	profile := handler.NewProfileHandler(profileSvc, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// Public: account creation and login.
		r.Post("/auth/register", authH.HandleRegister)
		r.Post("/auth/login", authH.HandleLogin)
		r.Post("/auth/logout", authH.HandleLogout)

		// Everything else requires a valid token.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/auth/me", authH.HandleMe)
			r.Patch("/profile", profile.HandleUpdate)
			r.Patch("/profile/security", profile.HandleUpdateSecurity)

			r.Route("/movies", func(r chi.Router) {
				r.Get("/", movies.HandleList)
				r.Post("/", movies.HandleCreate)
				r.Get("/filters", movies.HandleFilters)
				r.Get("/export", movies.HandleExport)
				r.Post("/duplicates", movies.HandleDuplicatesCheck)
				r.Post("/duplicates/strict", movies.HandleDuplicatesCheckStrict)
				r.Post("/import", movies.HandleImport)
				r.Post("/copy", movies.HandleCopy)
				r.Get("/{id}", movies.HandleGet)
				r.Patch("/{id}", movies.HandleUpdate)
				r.Delete("/{id}", movies.HandleDelete)
				r.Post("/{id}/move", movies.HandleMove)
				r.Post("/{id}/restore", movies.HandleRestore)
			})

			r.Route("/tags", func(r chi.Router) {
				r.Get("/", tags.HandleList)
				r.Post("/", tags.HandleCreate)
				r.Get("/{id}", tags.HandleGet)
				r.Patch("/{id}", tags.HandleUpdate)
				r.Delete("/{id}", tags.HandleDelete)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", feed.HandleFeed)
				r.Get("/status", feed.HandleStatus)
				r.Post("/read", feed.HandleMarkRead)
				r.Get("/authors", feed.HandleAuthors)
			})

			r.Get("/follows", feed.HandleFollowing)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", users.HandleDirectory)
				r.Get("/{id}", users.HandleProfile)
				r.Get("/{id}/movies", users.HandleMovies)
				r.Get("/{id}/movies/{movieId}", users.HandleMovie)
				r.Get("/{id}/filters", users.HandleFilters)
				r.Post("/{id}/follow", feed.HandleFollow)
				r.Delete("/{id}/follow", feed.HandleUnfollow)
			})

			r.Get("/tabs", users.HandleTabCounts)
		})
	})

	return nil
}

// Handler exposes the configured router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the server's resources without serving. Start handles
// this itself; Close exists for callers that use Handler() directly.
func (s *Server) Close() error {
	return s.db.Close()
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests for
// up to 30 seconds, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
