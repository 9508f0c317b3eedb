package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
)

func TestSessionRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT id, title, style, created_at, updated_at FROM sessions WHERE user_id=\$1 ORDER BY updated_at DESC`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "style", "created_at", "updated_at"}).
			AddRow("s1", "挨拶の練習", model.StyleCasual, now, now).
			AddRow("s2", "新的对话", model.StyleFormal, now, now))

	out, err := r.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, "s1", out[0].ID)
	require.Equal(t, model.StyleFormal, out[1].Style)
	require.Empty(t, out[0].Messages)
}

func TestSessionRepo_Get_WithMessagesAndFeedback(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	now := time.Now()

	mock.ExpectQuery(`SELECT id, title, style, created_at, updated_at FROM sessions WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "s1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "title", "style", "created_at", "updated_at"}).
			AddRow("s1", "挨拶の練習", model.StyleCasual, now, now))

	corrected := "こんにちは！"
	expl := "自然な言い方"
	score := 95
	mock.ExpectQuery(`SELECT id, role, content, translation, corrected_sentence, explanation, naturalness_score, audio_base64, created_at FROM messages WHERE session_id=\$1 ORDER BY seq ASC`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "role", "content", "translation",
			"corrected_sentence", "explanation", "naturalness_score",
			"audio_base64", "created_at",
		}).
			AddRow("m1", model.RoleUser, "こんにちわ", "", nil, nil, nil, nil, now).
			AddRow("m2", model.RoleAssistant, "こんにちは！", "你好！", &corrected, &expl, &score, nil, now))

	sess, err := r.Get(ctx, userID, "s1")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	require.Nil(t, sess.Messages[0].Feedback)
	require.NotNil(t, sess.Messages[1].Feedback)
	require.Equal(t, 95, sess.Messages[1].Feedback.NaturalnessScore)
	require.Equal(t, "こんにちは！", sess.Messages[1].Feedback.CorrectedSentence)
}

func TestSessionRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT id, title, style, created_at, updated_at FROM sessions WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := r.Get(ctx, userID, "missing")
	require.ErrorIs(t, err, errs.ErrSessionNotFound)
}

func TestSessionRepo_Create(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	now := time.Now()
	sess := &model.Session{ID: "s1", Title: "新的对话", Style: model.StyleCasual, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO sessions \(id, user_id, title, style, created_at, updated_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs(sess.ID, userID, sess.Title, sess.Style, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, userID, sess))
}

func TestSessionRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, userID, "s1"))

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(ctx, userID, "s1"), errs.ErrSessionNotFound)
}

func TestSessionRepo_UpdateTitle(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`UPDATE sessions SET title=\$3, updated_at=now\(\) WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "s1", "挨拶の練習").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.UpdateTitle(ctx, userID, "s1", "挨拶の練習"))

	mock.ExpectExec(`UPDATE sessions SET title=\$3, updated_at=now\(\) WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "missing", "x").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.UpdateTitle(ctx, userID, "missing", "x"), errs.ErrSessionNotFound)
}

func TestSessionRepo_AddMessage_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	now := time.Now()
	msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "こんにちは", CreatedAt: now}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM sessions WHERE user_id=\$1 AND id=\$2 FOR UPDATE`).
		WithArgs(userID, "s1").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(msg.ID, "s1", msg.Role, msg.Content, msg.Translation,
			(*string)(nil), (*string)(nil), (*int)(nil), (*string)(nil), now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE sessions SET updated_at=\$3 WHERE user_id=\$1 AND id=\$2`).
		WithArgs(userID, "s1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, r.AddMessage(ctx, userID, "s1", msg))
}

func TestSessionRepo_AddMessage_SessionMissing(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewSessionRepo(db)
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	msg := &model.Message{ID: "m1", Role: model.RoleUser, Content: "x", CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT 1 FROM sessions WHERE user_id=\$1 AND id=\$2 FOR UPDATE`).
		WithArgs(userID, "missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	require.ErrorIs(t, r.AddMessage(ctx, userID, "missing", msg), errs.ErrSessionNotFound)
}
