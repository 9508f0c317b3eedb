package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/mastery"
	"github.com/yujiapingyu/kokoro/internal/model"
)

// Favorites are owned by the authoritative store, so unlike message appends
// every favorite mutation here is remote-first: the local cache changes only
// after the gateway acknowledges. Mastery is low-frequency; idempotency
// matters more than latency.

// AddFavoriteFromMessage bookmarks an assistant reply or its feedback text.
// The message must exist in the active session; the synthesized welcome
// message is excluded from bookmarking.
func (s *Store) AddFavoriteFromMessage(ctx context.Context, messageID string, source model.FavoriteSource, text, translation string) (model.Favorite, error) {
	if messageID == model.WelcomeMessageID {
		return model.Favorite{}, errs.ErrNotFound
	}

	s.mu.Lock()
	sess := s.ensureActiveLocked()
	if sess == nil {
		s.mu.Unlock()
		return model.Favorite{}, errs.ErrNoActiveSession
	}
	found := false
	for i := range sess.Messages {
		if sess.Messages[i].ID == messageID {
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return model.Favorite{}, errs.ErrNotFound
	}

	return s.createFavorite(ctx, text, translation, "", source)
}

// AddFavoriteFromFeedback bookmarks the user's original sentence together
// with the corrected version and the explanation as a study note.
func (s *Store) AddFavoriteFromFeedback(ctx context.Context, originalText, correctedSentence, explanation string) (model.Favorite, error) {
	originalText = strings.TrimSpace(originalText)
	if originalText == "" {
		return model.Favorite{}, errs.ErrNotFound
	}
	return s.createFavorite(ctx, originalText, correctedSentence, explanation, model.SourceAIFeedback)
}

// AddFavoriteFromSelection bookmarks a free-text selection.
func (s *Store) AddFavoriteFromSelection(ctx context.Context, text, translation string) (model.Favorite, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Favorite{}, errs.ErrNotFound
	}
	return s.createFavorite(ctx, text, translation, "", model.SourceSelection)
}

func (s *Store) createFavorite(ctx context.Context, text, translation, note string, source model.FavoriteSource) (model.Favorite, error) {
	created, err := s.deck.CreateFavorite(ctx, text, translation, source)
	if err != nil {
		return model.Favorite{}, fmt.Errorf("create favorite: %w", err)
	}
	// The note is client-side study context; the gateway contract does not
	// carry it.
	created.Note = note

	s.mu.Lock()
	fav := created
	s.favorites = append([]*model.Favorite{&fav}, s.favorites...)
	s.mu.Unlock()
	return created, nil
}

// RemoveFavorite deletes remotely first; the cache shrinks only on
// acknowledgment.
func (s *Store) RemoveFavorite(ctx context.Context, id string) error {
	if err := s.deck.DeleteFavorite(ctx, id); err != nil {
		return fmt.Errorf("remove favorite %s: %w", id, err)
	}

	s.mu.Lock()
	for i, fav := range s.favorites {
		if fav.ID == id {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			break
		}
	}
	if s.flashcard >= len(s.favorites) {
		s.flashcard = 0
	}
	s.mu.Unlock()
	return nil
}

// UpdateFavoriteMastery evaluates one review. The next state is computed
// locally with the shared transition function, sent to the gateway, and
// committed to the cache only on acknowledgment — no optimistic commit, so a
// failed update leaves the favorite at its pre-review state.
func (s *Store) UpdateFavoriteMastery(ctx context.Context, id string, correct bool) (model.Favorite, error) {
	s.mu.Lock()
	var cur *model.Favorite
	for _, fav := range s.favorites {
		if fav.ID == id {
			cur = fav
			break
		}
	}
	if cur == nil {
		s.mu.Unlock()
		return model.Favorite{}, errs.ErrFavoriteNotFound
	}
	level, count := cur.Mastery, cur.ReviewCount
	s.mu.Unlock()

	next := mastery.Advance(level, count, correct, s.now())
	updated, err := s.deck.UpdateMastery(ctx, id, next.Mastery, next.ReviewCount, next.LastReviewedAt)
	if err != nil {
		return model.Favorite{}, fmt.Errorf("update mastery %s: %w", id, err)
	}

	s.mu.Lock()
	if cur := s.favoriteLocked(id); cur != nil {
		note := cur.Note
		*cur = updated
		cur.Note = note
	}
	s.mu.Unlock()
	return updated, nil
}

func (s *Store) favoriteLocked(id string) *model.Favorite {
	for _, fav := range s.favorites {
		if fav.ID == id {
			return fav
		}
	}
	return nil
}

// Favorites returns a copy of the review deck, newest first.
func (s *Store) Favorites() []model.Favorite {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Favorite, 0, len(s.favorites))
	for _, fav := range s.favorites {
		out = append(out, *fav)
	}
	return out
}

// UpdateFlashcardIndex moves the review cursor by delta with wraparound and
// returns the new index. An empty deck is a no-op at index 0.
func (s *Store) UpdateFlashcardIndex(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.favorites)
	if n == 0 {
		s.flashcard = 0
		return 0
	}
	s.flashcard = ((s.flashcard+delta)%n + n) % n
	return s.flashcard
}

// FlashcardIndex returns the current review cursor.
func (s *Store) FlashcardIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flashcard
}

// ExportFavoritesMarkdown renders the deck as a markdown study sheet.
// An empty deck renders as the empty string.
func (s *Store) ExportFavoritesMarkdown() string {
	favs := s.Favorites()
	if len(favs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# 日语学习收藏本\n")
	for _, fav := range favs {
		translation := fav.Translation
		if translation == "" {
			translation = "（未填写）"
		}
		note := fav.Note
		if note == "" {
			note = "（无说明）"
		}
		fmt.Fprintf(&b, "\n### %s\n", fav.Text)
		fmt.Fprintf(&b, "- 来源: %s\n", fav.Source)
		fmt.Fprintf(&b, "- 翻译/修正版: %s\n", translation)
		fmt.Fprintf(&b, "- 说明: %s\n", note)
		fmt.Fprintf(&b, "- 熟悉度: %s\n", fav.Mastery)
		fmt.Fprintf(&b, "- 收藏时间: %s\n", fav.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return b.String()
}
