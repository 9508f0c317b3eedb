package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yujiapingyu/kokoro/internal/model"
)

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	favs, err := s.favorites.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]favoriteDTO, 0, len(favs))
	for _, f := range favs {
		out = append(out, toFavoriteDTO(f))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		Text        string `json:"text"`
		Translation string `json:"translation"`
		Source      string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fav, err := s.favorites.Create(r.Context(), userID, req.Text, req.Translation, model.FavoriteSource(req.Source))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toFavoriteDTO(fav))
}

func (s *Server) handleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	if err := s.favorites.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReviewFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		Mastery        string    `json:"mastery"`
		ReviewCount    int       `json:"review_count"`
		LastReviewedAt time.Time `json:"last_reviewed_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fav, err := s.favorites.Review(r.Context(), userID, chi.URLParam(r, "id"), model.Mastery(req.Mastery), req.LastReviewedAt)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFavoriteDTO(*fav))
}
