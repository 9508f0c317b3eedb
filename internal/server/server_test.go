package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/service"
)

var testKey = []byte("test-sign-key")

type fakeAuthSvc struct {
	registerOut string
	registerErr error
	loginOut    model.Tokens
	loginErr    error
}

var _ service.AuthService = (*fakeAuthSvc)(nil)

func (f *fakeAuthSvc) Register(context.Context, string, string) (string, error) {
	return f.registerOut, f.registerErr
}
func (f *fakeAuthSvc) Login(context.Context, string, string) (model.Tokens, model.User, error) {
	return f.loginOut, model.User{}, f.loginErr
}

type fakeSessionSvc struct {
	listOut   []model.Session
	createOut model.Session
	createErr error
	getOut    *model.Session
	getErr    error
	deleteErr error
	renameErr error
	addOut    model.Message
	addErr    error

	lastUser    uuid.UUID
	lastSession string
	lastMessage model.Message
}

var _ service.SessionService = (*fakeSessionSvc)(nil)

func (f *fakeSessionSvc) List(_ context.Context, userID uuid.UUID) ([]model.Session, error) {
	f.lastUser = userID
	return f.listOut, nil
}
func (f *fakeSessionSvc) Create(_ context.Context, userID uuid.UUID, title string, style model.ConversationStyle) (model.Session, error) {
	f.lastUser = userID
	return f.createOut, f.createErr
}
func (f *fakeSessionSvc) Get(_ context.Context, userID uuid.UUID, id string) (*model.Session, error) {
	f.lastSession = id
	return f.getOut, f.getErr
}
func (f *fakeSessionSvc) Delete(_ context.Context, userID uuid.UUID, id string) error {
	f.lastSession = id
	return f.deleteErr
}
func (f *fakeSessionSvc) Rename(_ context.Context, userID uuid.UUID, id, title string) error {
	f.lastSession = id
	return f.renameErr
}
func (f *fakeSessionSvc) AddMessage(_ context.Context, userID uuid.UUID, sessionID string, msg model.Message) (model.Message, error) {
	f.lastSession, f.lastMessage = sessionID, msg
	return f.addOut, f.addErr
}

type fakeFavoriteSvc struct {
	listOut   []model.Favorite
	createOut model.Favorite
	createErr error
	deleteErr error
	reviewOut *model.Favorite
	reviewErr error

	reviewedMastery model.Mastery
}

var _ service.FavoriteService = (*fakeFavoriteSvc)(nil)

func (f *fakeFavoriteSvc) List(context.Context, uuid.UUID) ([]model.Favorite, error) {
	return f.listOut, nil
}
func (f *fakeFavoriteSvc) Create(_ context.Context, _ uuid.UUID, text, translation string, source model.FavoriteSource) (model.Favorite, error) {
	return f.createOut, f.createErr
}
func (f *fakeFavoriteSvc) Delete(context.Context, uuid.UUID, string) error {
	return f.deleteErr
}
func (f *fakeFavoriteSvc) Review(_ context.Context, _ uuid.UUID, _ string, submitted model.Mastery, _ time.Time) (*model.Favorite, error) {
	f.reviewedMastery = submitted
	return f.reviewOut, f.reviewErr
}

func newTestServer(t *testing.T, auth *fakeAuthSvc, sess *fakeSessionSvc, favs *fakeFavoriteSvc) *httptest.Server {
	t.Helper()
	if auth == nil {
		auth = &fakeAuthSvc{}
	}
	if sess == nil {
		sess = &fakeSessionSvc{}
	}
	if favs == nil {
		favs = &fakeFavoriteSvc{}
	}
	srv := New(zap.NewNop(), auth, sess, favs, testKey)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)
	return signed
}

func doReq(t *testing.T, ts *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(buf)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	ts := newTestServer(t, nil, nil, nil)

	// No token.
	resp := doReq(t, ts, http.MethodGet, "/api/sessions/", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Garbage token.
	resp = doReq(t, ts, http.MethodGet, "/api/sessions/", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Valid token.
	resp = doReq(t, ts, http.MethodGet, "/api/sessions/", signToken(t, uuid.Must(uuid.NewV4())), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterAndLogin(t *testing.T) {
	auth := &fakeAuthSvc{
		registerOut: "user-1",
		loginOut:    model.Tokens{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Minute)},
	}
	ts := newTestServer(t, auth, nil, nil)

	resp := doReq(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "pwd"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var reg map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&reg))
	resp.Body.Close()
	require.Equal(t, "user-1", reg["id"])

	resp = doReq(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "", "password": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "pwd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	resp.Body.Close()
	require.Equal(t, "tok", login.AccessToken)

	auth.loginErr = errs.ErrUnauthorized
	resp = doReq(t, ts, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestRegisterConflict(t *testing.T) {
	ts := newTestServer(t, &fakeAuthSvc{registerErr: errs.ErrAlreadyExists}, nil, nil)

	resp := doReq(t, ts, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "alice", "password": "pwd"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateSessionWireShape(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &fakeSessionSvc{createOut: model.Session{
		ID: "srv-1", Title: "新的对话", Style: model.StyleCasual, CreatedAt: now, UpdatedAt: now,
	}}
	ts := newTestServer(t, nil, sess, nil)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodPost, "/api/sessions/", token,
		map[string]string{"title": "新的对话", "conversation_style": "casual"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	resp.Body.Close()
	require.Equal(t, "srv-1", raw["id"])
	require.Equal(t, "casual", raw["conversation_style"])
	_, hasMessages := raw["messages"]
	require.False(t, hasMessages) // empty list omitted
}

func TestGetSessionNotFound(t *testing.T) {
	sess := &fakeSessionSvc{getErr: errs.ErrSessionNotFound}
	ts := newTestServer(t, nil, sess, nil)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodGet, "/api/sessions/missing", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAddMessageRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := &fakeSessionSvc{addOut: model.Message{
		ID: "srv-msg-1", Role: model.RoleAssistant, Content: "こんにちは！",
		Feedback:  &model.Feedback{CorrectedSentence: "こんにちは！", NaturalnessScore: 95},
		CreatedAt: now,
	}}
	ts := newTestServer(t, nil, sess, nil)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodPost, "/api/sessions/srv-1/messages", token, map[string]any{
		"role":    "assistant",
		"content": "こんにちは！",
		"feedback": map[string]any{
			"correctedSentence": "こんにちは！",
			"naturalnessScore":  95,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	resp.Body.Close()
	require.Equal(t, "srv-msg-1", raw["id"])
	fb := raw["feedback"].(map[string]any)
	require.EqualValues(t, 95, fb["naturalnessScore"])

	require.Equal(t, "srv-1", sess.lastSession)
	require.Equal(t, model.RoleAssistant, sess.lastMessage.Role)
}

func TestDeleteAndRename(t *testing.T) {
	sess := &fakeSessionSvc{}
	ts := newTestServer(t, nil, sess, nil)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodDelete, "/api/sessions/srv-1", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = doReq(t, ts, http.MethodPut, "/api/sessions/srv-1/title", token, map[string]string{"title": "挨拶の練習"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	sess.deleteErr = errs.ErrSessionNotFound
	resp = doReq(t, ts, http.MethodDelete, "/api/sessions/missing", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestFavoriteReviewWireShape(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	favs := &fakeFavoriteSvc{reviewOut: &model.Favorite{
		ID: "f1", Text: "ありがとう", Source: model.SourceAIReply,
		Mastery: model.MasteryLearning, ReviewCount: 2, CreatedAt: now, LastReviewedAt: &now,
	}}
	ts := newTestServer(t, nil, nil, favs)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodPut, "/api/favorites/f1", token, map[string]any{
		"mastery":          "learning",
		"review_count":     2,
		"last_reviewed_at": now,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	resp.Body.Close()
	require.Equal(t, "learning", raw["mastery"])
	require.EqualValues(t, 2, raw["review_count"])
	require.Equal(t, model.MasteryLearning, favs.reviewedMastery)
}

func TestFavoriteCreateAndDelete(t *testing.T) {
	now := time.Now()
	favs := &fakeFavoriteSvc{createOut: model.Favorite{
		ID: "f1", Text: "すみません", Source: model.SourceSelection,
		Mastery: model.MasteryNew, CreatedAt: now,
	}}
	ts := newTestServer(t, nil, nil, favs)
	token := signToken(t, uuid.Must(uuid.NewV4()))

	resp := doReq(t, ts, http.MethodPost, "/api/favorites/", token, map[string]string{
		"text": "すみません", "source": "selection",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var raw map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	resp.Body.Close()
	require.Equal(t, "new", raw["mastery"])

	resp = doReq(t, ts, http.MethodDelete, "/api/favorites/f1", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	favs.deleteErr = errs.ErrFavoriteNotFound
	resp = doReq(t, ts, http.MethodDelete, "/api/favorites/missing", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
