package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yujiapingyu/kokoro/internal/errs"
)

type credentialsReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "empty username/password")
		return
	}

	userID, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": userID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens, _, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			respondError(w, http.StatusUnauthorized, "bad credentials")
			return
		}
		s.writeServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}{AccessToken: tokens.AccessToken, ExpiresAt: tokens.ExpiresAt})
}
