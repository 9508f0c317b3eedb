// Package server exposes the kokoro REST API over chi.
package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	log       *zap.Logger
	auth      service.AuthService
	sessions  service.SessionService
	favorites service.FavoriteService
	signKey   []byte
}

// New constructs a server with injected services.
func New(log *zap.Logger, auth service.AuthService, sessions service.SessionService, favorites service.FavoriteService, signKey []byte) *Server {
	return &Server{log: log, auth: auth, sessions: sessions, favorites: favorites, signKey: signKey}
}

// Routes builds the router. Auth endpoints are public; everything else
// requires a bearer token.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(Logging(s.log))
	r.Use(Recover(s.log))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(a chi.Router) {
			a.Post("/register", s.handleRegister)
			a.Post("/login", s.handleLogin)
		})

		api.Group(func(priv chi.Router) {
			priv.Use(Auth(s.signKey))

			priv.Route("/sessions", func(ss chi.Router) {
				ss.Get("/", s.handleListSessions)
				ss.Post("/", s.handleCreateSession)
				ss.Get("/{id}", s.handleGetSession)
				ss.Delete("/{id}", s.handleDeleteSession)
				ss.Put("/{id}/title", s.handleUpdateTitle)
				ss.Post("/{id}/messages", s.handleAddMessage)
			})

			priv.Route("/favorites", func(fs chi.Router) {
				fs.Get("/", s.handleListFavorites)
				fs.Post("/", s.handleCreateFavorite)
				fs.Delete("/{id}", s.handleDeleteFavorite)
				fs.Put("/{id}", s.handleReviewFavorite)
			})
		})
	})
	return r
}

// writeServiceError maps service errors to HTTP statuses. Unmapped errors
// are logged and returned as opaque 500s.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrSessionNotFound),
		errors.Is(err, errs.ErrFavoriteNotFound),
		errors.Is(err, errs.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, errs.ErrAlreadyExists):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, errs.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	case strings.HasPrefix(err.Error(), "validation:"):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("handler", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal")
	}
}
