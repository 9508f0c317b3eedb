package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
)

// SessionRepo implements SessionRepository using PostgreSQL. Messages live in
// their own table keyed by an append-order sequence; feedback is flattened
// into nullable columns on the message row.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// List returns the user's sessions without messages, most recent first.
func (r *SessionRepo) List(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	const q = `
SELECT id, title, style, created_at, updated_at
FROM sessions
WHERE user_id=$1
ORDER BY updated_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Session
	for rows.Next() {
		var s model.Session
		if err = rows.Scan(&s.ID, &s.Title, &s.Style, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create inserts a new session row.
func (r *SessionRepo) Create(ctx context.Context, userID uuid.UUID, sess *model.Session) error {
	const q = `
INSERT INTO sessions (id, user_id, title, style, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, sess.ID, userID, sess.Title, sess.Style, sess.CreatedAt, sess.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get loads one session with its messages in append order.
func (r *SessionRepo) Get(ctx context.Context, userID uuid.UUID, id string) (*model.Session, error) {
	const qs = `
SELECT id, title, style, created_at, updated_at
FROM sessions WHERE user_id=$1 AND id=$2`
	var s model.Session
	row := r.db.Pool.QueryRow(ctx, qs, userID, id)
	if err := row.Scan(&s.ID, &s.Title, &s.Style, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}

	const qm = `
SELECT id, role, content, translation,
       corrected_sentence, explanation, naturalness_score,
       audio_base64, created_at
FROM messages
WHERE session_id=$1
ORDER BY seq ASC`
	rows, err := r.db.Pool.Query(ctx, qm, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m         model.Message
			corrected *string
			expl      *string
			score     *int
			audio     *string
		)
		if err = rows.Scan(&m.ID, &m.Role, &m.Content, &m.Translation,
			&corrected, &expl, &score, &audio, &m.CreatedAt); err != nil {
			return nil, err
		}
		if corrected != nil {
			m.Feedback = &model.Feedback{
				CorrectedSentence: *corrected,
				Explanation:       derefString(expl),
				NaturalnessScore:  derefInt(score),
			}
		}
		m.AudioBase64 = derefString(audio)
		s.Messages = append(s.Messages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes a session; messages go with it via ON DELETE CASCADE.
func (r *SessionRepo) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	const q = `DELETE FROM sessions WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// UpdateTitle renames a session and bumps updated_at.
func (r *SessionRepo) UpdateTitle(ctx context.Context, userID uuid.UUID, id, title string) error {
	const q = `
UPDATE sessions SET title=$3, updated_at=now()
WHERE user_id=$1 AND id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, id, title)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrSessionNotFound
	}
	return nil
}

// AddMessage appends a message and bumps the session's updated_at in one
// transaction. The ownership check and the insert must see the same session
// row, hence the FOR UPDATE lock.
func (r *SessionRepo) AddMessage(
	ctx context.Context, userID uuid.UUID, sessionID string, msg *model.Message,
) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const sel = `SELECT 1 FROM sessions WHERE user_id=$1 AND id=$2 FOR UPDATE`
	var one int
	if err = tx.QueryRow(ctx, sel, userID, sessionID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrSessionNotFound
		}
		return err
	}

	var corrected, expl *string
	var score *int
	if msg.Feedback != nil {
		corrected = &msg.Feedback.CorrectedSentence
		expl = &msg.Feedback.Explanation
		score = &msg.Feedback.NaturalnessScore
	}
	var audio *string
	if msg.AudioBase64 != "" {
		audio = &msg.AudioBase64
	}

	const ins = `
INSERT INTO messages (id, session_id, role, content, translation,
                      corrected_sentence, explanation, naturalness_score,
                      audio_base64, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err = tx.Exec(ctx, ins, msg.ID, sessionID, msg.Role, msg.Content, msg.Translation,
		corrected, expl, score, audio, msg.CreatedAt); err != nil {
		return err
	}

	const upd = `UPDATE sessions SET updated_at=$3 WHERE user_id=$1 AND id=$2`
	_, err = tx.Exec(ctx, upd, userID, sessionID, msg.CreatedAt)
	return err
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}
