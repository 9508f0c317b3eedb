package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yujiapingyu/kokoro/internal/model"
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	sessions, err := s.sessions.List(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]sessionDTO, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionDTO(sess))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		Title             string `json:"title"`
		ConversationStyle string `json:"conversation_style"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := s.sessions.Create(r.Context(), userID, req.Title, model.ConversationStyle(req.ConversationStyle))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toSessionDTO(sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	sess, err := s.sessions.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toSessionDTO(*sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	if err := s.sessions.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateTitle(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.sessions.Rename(r.Context(), userID, chi.URLParam(r, "id"), req.Title); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromCtx(r.Context())

	var req struct {
		Role        string          `json:"role"`
		Content     string          `json:"content"`
		Translation string          `json:"translation"`
		Feedback    *model.Feedback `json:"feedback"`
		AudioBase64 string          `json:"audio_base64"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.sessions.AddMessage(r.Context(), userID, chi.URLParam(r, "id"), model.Message{
		Role:        model.MessageRole(req.Role),
		Content:     req.Content,
		Translation: req.Translation,
		Feedback:    req.Feedback,
		AudioBase64: req.AudioBase64,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMessageDTO(msg))
}
