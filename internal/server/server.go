package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ecocycle/apiserver/config"
	"github.com/ecocycle/apiserver/internal/db"
	"github.com/ecocycle/apiserver/internal/handlers"
	"github.com/ecocycle/apiserver/internal/services"
	"github.com/ecocycle/apiserver/internal/storage"
	"github.com/ecocycle/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	photoStorage, err := newPhotoStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	requestRepo := store.NewRequestRepository(dbConn)
	analyticsRepo := store.NewAnalyticsRepository(dbConn)
	listingRepo := store.NewListingRepository(dbConn)

	userService := services.NewUserService(userRepo)
	requestService := services.NewRequestService(requestRepo, cfg.StrictCompletion)
	analyticsService := services.NewAnalyticsService(analyticsRepo)
	listingService := services.NewListingService(listingRepo, photoStorage)

	authMiddleware := handlers.RequireAuth(jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/api/requests", func(r chi.Router) {
		handlers.RequestRouter(r, requestService, authMiddleware)
	})
	router.Route("/api/admin", func(r chi.Router) {
		handlers.AdminRouter(r, analyticsService, userService, authMiddleware)
	})
	router.Route("/api/listings", func(r chi.Router) {
		handlers.ListingRouter(r, listingService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
	}, nil
}

// newPhotoStorage selects the configured object-storage backend and makes
// sure its bucket exists.
func newPhotoStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	var backend storage.ObjectStorage
	switch cfg.Backend {
	case config.StorageBackendMinio:
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		backend = client
	case config.StorageBackendGCS:
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		backend = client
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}

	photoStorage := storage.NewStorage(backend)
	if err := photoStorage.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return photoStorage, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	return s.httpServer.Close()
}
