package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// FavoriteRepository provides per-user access to the review deck.
type FavoriteRepository interface {
	// List returns the user's favorites, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error)
	// Create inserts a new favorite.
	Create(ctx context.Context, userID uuid.UUID, fav *model.Favorite) error
	// Get loads one favorite.
	Get(ctx context.Context, userID uuid.UUID, id string) (*model.Favorite, error)
	// Delete removes a favorite.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
	// UpdateMastery stores the review outcome and returns the updated row.
	UpdateMastery(ctx context.Context, userID uuid.UUID, id string, m model.Mastery, reviewCount int, lastReviewedAt time.Time) (*model.Favorite, error)
}
