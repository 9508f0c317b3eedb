// Package rest implements the persistence gateway contracts over the
// bearer-token REST API exposed by the kokoro server.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/gateway"
	"github.com/yujiapingyu/kokoro/internal/model"
)

// TokenSource returns the current bearer token, or "" when not logged in.
type TokenSource func() string

// Client talks to the persistence gateway. It implements
// gateway.SessionGateway and gateway.FavoriteGateway.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

var (
	_ gateway.SessionGateway  = (*Client)(nil)
	_ gateway.FavoriteGateway = (*Client)(nil)
)

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a gateway client for the given base URL (without trailing slash).
func New(baseURL string, token TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		token:   token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ---- wire types (snake_case per server API) ----

type sessionDTO struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	ConversationStyle string       `json:"conversation_style"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Messages          []messageDTO `json:"messages,omitempty"`
}

type messageDTO struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Translation string          `json:"translation,omitempty"`
	Feedback    *model.Feedback `json:"feedback,omitempty"`
	AudioBase64 string          `json:"audio_base64,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type favoriteDTO struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Translation    string     `json:"translation,omitempty"`
	Source         string     `json:"source"`
	Mastery        string     `json:"mastery"`
	ReviewCount    int        `json:"review_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
}

func (d sessionDTO) toModel() model.Session {
	s := model.Session{
		ID:        d.ID,
		Title:     d.Title,
		Style:     model.ConversationStyle(d.ConversationStyle),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, m := range d.Messages {
		s.Messages = append(s.Messages, m.toModel())
	}
	return s
}

func (d messageDTO) toModel() model.Message {
	return model.Message{
		ID:          d.ID,
		Role:        model.MessageRole(d.Role),
		Content:     d.Content,
		Translation: d.Translation,
		Feedback:    d.Feedback,
		AudioBase64: d.AudioBase64,
		CreatedAt:   d.CreatedAt,
	}
}

func (d favoriteDTO) toModel() model.Favorite {
	return model.Favorite{
		ID:             d.ID,
		Text:           d.Text,
		Translation:    d.Translation,
		Source:         model.FavoriteSource(d.Source),
		Mastery:        model.Mastery(d.Mastery),
		ReviewCount:    d.ReviewCount,
		CreatedAt:      d.CreatedAt,
		LastReviewedAt: d.LastReviewedAt,
	}
}

// ---- sessions ----

func (c *Client) ListSessions(ctx context.Context) ([]model.Session, error) {
	var dtos []sessionDTO
	if err := c.do(ctx, http.MethodGet, "/api/sessions/", nil, &dtos); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.Session, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (c *Client) CreateSession(ctx context.Context, title string, style model.ConversationStyle) (model.Session, error) {
	req := struct {
		Title             string `json:"title"`
		ConversationStyle string `json:"conversation_style"`
	}{Title: title, ConversationStyle: string(style)}
	var dto sessionDTO
	if err := c.do(ctx, http.MethodPost, "/api/sessions/", req, &dto); err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	return dto.toModel(), nil
}

func (c *Client) GetSession(ctx context.Context, id string) (model.Session, error) {
	var dto sessionDTO
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+id, nil, &dto); err != nil {
		return model.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return dto.toModel(), nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/sessions/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (c *Client) UpdateTitle(ctx context.Context, id, title string) error {
	req := struct {
		Title string `json:"title"`
	}{Title: title}
	if err := c.do(ctx, http.MethodPut, "/api/sessions/"+id+"/title", req, nil); err != nil {
		return fmt.Errorf("update title %s: %w", id, err)
	}
	return nil
}

func (c *Client) AddMessage(ctx context.Context, sessionID string, msg model.Message) (model.Message, error) {
	req := struct {
		Role        string          `json:"role"`
		Content     string          `json:"content"`
		Translation string          `json:"translation,omitempty"`
		Feedback    *model.Feedback `json:"feedback,omitempty"`
		AudioBase64 string          `json:"audio_base64,omitempty"`
	}{
		Role:        string(msg.Role),
		Content:     msg.Content,
		Translation: msg.Translation,
		Feedback:    msg.Feedback,
		AudioBase64: msg.AudioBase64,
	}
	var dto messageDTO
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+sessionID+"/messages", req, &dto); err != nil {
		return model.Message{}, fmt.Errorf("add message to %s: %w", sessionID, err)
	}
	return dto.toModel(), nil
}

// ---- favorites ----

func (c *Client) ListFavorites(ctx context.Context) ([]model.Favorite, error) {
	var dtos []favoriteDTO
	if err := c.do(ctx, http.MethodGet, "/api/favorites/", nil, &dtos); err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	out := make([]model.Favorite, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.toModel())
	}
	return out, nil
}

func (c *Client) CreateFavorite(ctx context.Context, text, translation string, source model.FavoriteSource) (model.Favorite, error) {
	req := struct {
		Text        string `json:"text"`
		Translation string `json:"translation,omitempty"`
		Source      string `json:"source"`
	}{Text: text, Translation: translation, Source: string(source)}
	var dto favoriteDTO
	if err := c.do(ctx, http.MethodPost, "/api/favorites/", req, &dto); err != nil {
		return model.Favorite{}, fmt.Errorf("create favorite: %w", err)
	}
	return dto.toModel(), nil
}

func (c *Client) DeleteFavorite(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/favorites/"+id, nil, nil); err != nil {
		return fmt.Errorf("delete favorite %s: %w", id, err)
	}
	return nil
}

func (c *Client) UpdateMastery(ctx context.Context, id string, m model.Mastery, reviewCount int, lastReviewedAt time.Time) (model.Favorite, error) {
	req := struct {
		Mastery        string    `json:"mastery"`
		ReviewCount    int       `json:"review_count"`
		LastReviewedAt time.Time `json:"last_reviewed_at"`
	}{Mastery: string(m), ReviewCount: reviewCount, LastReviewedAt: lastReviewedAt}
	var dto favoriteDTO
	if err := c.do(ctx, http.MethodPut, "/api/favorites/"+id, req, &dto); err != nil {
		return model.Favorite{}, fmt.Errorf("update mastery %s: %w", id, err)
	}
	return dto.toModel(), nil
}

// do issues one request. 401 maps to errs.ErrUnauthorized, 404 to
// errs.ErrNotFound; other non-2xx statuses carry the response body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return errs.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway: %s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
