// Package gateway defines the client-side contracts for the remote
// persistence service. The store depends on these interfaces only; the REST
// implementation lives in the rest subpackage and test doubles in the store
// tests.
package gateway

import (
	"context"
	"time"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// SessionGateway provides CRUD over sessions and their messages.
type SessionGateway interface {
	// ListSessions returns all sessions without their message lists,
	// newest first.
	ListSessions(ctx context.Context) ([]model.Session, error)

	// CreateSession creates a session and returns it with the
	// server-assigned id.
	CreateSession(ctx context.Context, title string, style model.ConversationStyle) (model.Session, error)

	// GetSession returns one session including its full message list.
	GetSession(ctx context.Context, id string) (model.Session, error)

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// UpdateTitle renames a session.
	UpdateTitle(ctx context.Context, id, title string) error

	// AddMessage appends a message to a session and returns the stored
	// message with its server-assigned id.
	AddMessage(ctx context.Context, sessionID string, msg model.Message) (model.Message, error)
}

// FavoriteGateway provides CRUD over the review deck.
type FavoriteGateway interface {
	// ListFavorites returns all favorites, newest first.
	ListFavorites(ctx context.Context) ([]model.Favorite, error)

	// CreateFavorite stores a new favorite and returns it with the
	// server-assigned id and initial mastery state.
	CreateFavorite(ctx context.Context, text, translation string, source model.FavoriteSource) (model.Favorite, error)

	// DeleteFavorite removes a favorite.
	DeleteFavorite(ctx context.Context, id string) error

	// UpdateMastery persists one review evaluation and returns the
	// authoritative favorite state.
	UpdateMastery(ctx context.Context, id string, m model.Mastery, reviewCount int, lastReviewedAt time.Time) (model.Favorite, error)
}
