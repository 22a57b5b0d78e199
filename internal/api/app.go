package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/handlers"
	"github.com/nearchat/nearchat/internal/access"
	"github.com/nearchat/nearchat/internal/config"
	"github.com/nearchat/nearchat/internal/database"
	"github.com/nearchat/nearchat/internal/server"
	"github.com/teris-io/shortid"
)

type NearChatApp struct {
	log             *log.Logger
	db              database.Repository
	mux             *http.Server
	cs              *server.ChatServer
	access          *access.Controller
	validate        *validator.Validate
	signingKey      []byte
	allowedOrigins  []string
	defaultRadiusKm float64
	generateShortId func() (string, error)
}

func NewNearChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, ac *access.Controller, db database.Repository, cfg *config.Config) *NearChatApp {
	s := &NearChatApp{
		log:             logger,
		db:              db,
		cs:              cs,
		access:          ac,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		defaultRadiusKm: cfg.DefaultRadiusKm,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.getRoom)
	mux.Handle("GET /api/rooms/owned", s.authMiddleware(s.listOwnedRooms))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("POST /api/rooms/deactivate", s.authMiddleware(s.deactivateRoom))
	mux.HandleFunc("POST /api/access", s.checkAccess)
	mux.HandleFunc("GET /api/messages", s.getMessages)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *NearChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *NearChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
