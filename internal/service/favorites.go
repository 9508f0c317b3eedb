package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/yujiapingyu/kokoro/internal/mastery"
	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/repository"
)

// FavoriteService defines operations over the review deck.
type FavoriteService interface {
	// List returns the user's favorites, newest first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error)
	// Create bookmarks a phrase at mastery "new".
	Create(ctx context.Context, userID uuid.UUID, text, translation string, source model.FavoriteSource) (model.Favorite, error)
	// Delete removes a favorite.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
	// Review records one review outcome and returns the updated favorite.
	Review(ctx context.Context, userID uuid.UUID, id string, submitted model.Mastery, lastReviewedAt time.Time) (*model.Favorite, error)
}

type FavoriteServiceImpl struct {
	repo repository.FavoriteRepository
}

// NewFavoriteService constructs FavoriteService.
func NewFavoriteService(repo repository.FavoriteRepository) *FavoriteServiceImpl {
	return &FavoriteServiceImpl{repo: repo}
}

// List returns the user's favorites.
func (s *FavoriteServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	return s.repo.List(ctx, userID)
}

// Create inserts a new favorite with a server-assigned id.
func (s *FavoriteServiceImpl) Create(ctx context.Context, userID uuid.UUID, text, translation string, source model.FavoriteSource) (model.Favorite, error) {
	if userID == uuid.Nil {
		return model.Favorite{}, errors.New("validation: empty userID")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Favorite{}, errors.New("validation: empty text")
	}
	switch source {
	case model.SourceAIReply, model.SourceAIFeedback, model.SourceSelection:
	default:
		return model.Favorite{}, errors.New("validation: unknown source")
	}

	fav := model.Favorite{
		ID:          model.NewID(),
		Text:        text,
		Translation: translation,
		Source:      source,
		Mastery:     model.MasteryNew,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, userID, &fav); err != nil {
		return model.Favorite{}, err
	}
	return fav, nil
}

// Delete removes a favorite.
func (s *FavoriteServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	if userID == uuid.Nil || id == "" {
		return errors.New("validation: empty userID/id")
	}
	return s.repo.Delete(ctx, userID, id)
}

// Review records one review outcome. The stored row, not the client, is
// authoritative: the next state is recomputed here from the current level and
// count, and the submitted mastery only selects the direction. A client
// claiming an unreachable level gets the computed one back.
func (s *FavoriteServiceImpl) Review(ctx context.Context, userID uuid.UUID, id string, submitted model.Mastery, lastReviewedAt time.Time) (*model.Favorite, error) {
	if userID == uuid.Nil || id == "" {
		return nil, errors.New("validation: empty userID/id")
	}
	if lastReviewedAt.IsZero() {
		lastReviewedAt = time.Now()
	}

	cur, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	promoted := mastery.Advance(cur.Mastery, cur.ReviewCount, true, lastReviewedAt)
	next := mastery.Advance(cur.Mastery, cur.ReviewCount, false, lastReviewedAt)
	if submitted == promoted.Mastery {
		next = promoted
	}
	return s.repo.UpdateMastery(ctx, userID, id, next.Mastery, next.ReviewCount, next.LastReviewedAt)
}
