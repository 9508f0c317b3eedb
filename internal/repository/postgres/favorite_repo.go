package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
)

// FavoriteRepo implements FavoriteRepository using PostgreSQL.
type FavoriteRepo struct{ db *DB }

// NewFavoriteRepo constructs a favorite repository.
func NewFavoriteRepo(db *DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

const favoriteColumns = `id, text, translation, note, source, mastery, review_count, created_at, last_reviewed_at`

// List returns the user's favorites, newest first.
func (r *FavoriteRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Favorite, error) {
	const q = `
SELECT ` + favoriteColumns + `
FROM favorites
WHERE user_id=$1
ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Favorite
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Create inserts a new favorite.
func (r *FavoriteRepo) Create(ctx context.Context, userID uuid.UUID, fav *model.Favorite) error {
	const q = `
INSERT INTO favorites (id, user_id, text, translation, note, source, mastery, review_count, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Pool.Exec(ctx, q, fav.ID, userID, fav.Text, fav.Translation, fav.Note,
		fav.Source, fav.Mastery, fav.ReviewCount, fav.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get loads one favorite.
func (r *FavoriteRepo) Get(ctx context.Context, userID uuid.UUID, id string) (*model.Favorite, error) {
	const q = `
SELECT ` + favoriteColumns + `
FROM favorites WHERE user_id=$1 AND id=$2`
	f, err := scanFavorite(r.db.Pool.QueryRow(ctx, q, userID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrFavoriteNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes a favorite.
func (r *FavoriteRepo) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	const q = `DELETE FROM favorites WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrFavoriteNotFound
	}
	return nil
}

// UpdateMastery stores the review outcome and returns the updated row.
func (r *FavoriteRepo) UpdateMastery(
	ctx context.Context, userID uuid.UUID, id string,
	m model.Mastery, reviewCount int, lastReviewedAt time.Time,
) (*model.Favorite, error) {
	const q = `
UPDATE favorites
SET mastery=$3, review_count=$4, last_reviewed_at=$5
WHERE user_id=$1 AND id=$2
RETURNING ` + favoriteColumns
	f, err := scanFavorite(r.db.Pool.QueryRow(ctx, q, userID, id, m, reviewCount, lastReviewedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrFavoriteNotFound
		}
		return nil, err
	}
	return f, nil
}

func scanFavorite(row pgx.Row) (*model.Favorite, error) {
	var f model.Favorite
	if err := row.Scan(&f.ID, &f.Text, &f.Translation, &f.Note, &f.Source,
		&f.Mastery, &f.ReviewCount, &f.CreatedAt, &f.LastReviewedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
