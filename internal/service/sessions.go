package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/repository"
)

// maxTitleLen bounds session titles; longer input is truncated, not rejected,
// since titles are generated from free-form chat content.
const maxTitleLen = 120

// SessionService defines operations over chat sessions and messages. All ids
// are server-assigned here; client-proposed message ids are discarded.
type SessionService interface {
	// List returns the user's sessions without messages, most recent first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Session, error)
	// Create makes a new empty session and returns it.
	Create(ctx context.Context, userID uuid.UUID, title string, style model.ConversationStyle) (model.Session, error)
	// Get returns one session with its full message list.
	Get(ctx context.Context, userID uuid.UUID, id string) (*model.Session, error)
	// Delete removes a session and its messages.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
	// Rename sets a session title.
	Rename(ctx context.Context, userID uuid.UUID, id, title string) error
	// AddMessage appends a message and returns the stored copy with its
	// server-assigned id.
	AddMessage(ctx context.Context, userID uuid.UUID, sessionID string, msg model.Message) (model.Message, error)
}

type SessionServiceImpl struct {
	repo repository.SessionRepository
}

// NewSessionService constructs SessionService.
func NewSessionService(repo repository.SessionRepository) *SessionServiceImpl {
	return &SessionServiceImpl{repo: repo}
}

// List returns the user's sessions.
func (s *SessionServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Session, error) {
	if userID == uuid.Nil {
		return nil, errors.New("validation: empty userID")
	}
	return s.repo.List(ctx, userID)
}

// Create inserts a new session with a server-assigned id.
func (s *SessionServiceImpl) Create(ctx context.Context, userID uuid.UUID, title string, style model.ConversationStyle) (model.Session, error) {
	if userID == uuid.Nil {
		return model.Session{}, errors.New("validation: empty userID")
	}
	title = normalizeTitle(title)
	if style != model.StyleCasual && style != model.StyleFormal {
		style = model.StyleCasual
	}
	now := time.Now()
	sess := model.Session{
		ID:        model.NewID(),
		Title:     title,
		Style:     style,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, userID, &sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Get returns one session with messages.
func (s *SessionServiceImpl) Get(ctx context.Context, userID uuid.UUID, id string) (*model.Session, error) {
	if userID == uuid.Nil || id == "" {
		return nil, errors.New("validation: empty userID/id")
	}
	return s.repo.Get(ctx, userID, id)
}

// Delete removes a session.
func (s *SessionServiceImpl) Delete(ctx context.Context, userID uuid.UUID, id string) error {
	if userID == uuid.Nil || id == "" {
		return errors.New("validation: empty userID/id")
	}
	return s.repo.Delete(ctx, userID, id)
}

// Rename sets the session title.
func (s *SessionServiceImpl) Rename(ctx context.Context, userID uuid.UUID, id, title string) error {
	if userID == uuid.Nil || id == "" {
		return errors.New("validation: empty userID/id")
	}
	return s.repo.UpdateTitle(ctx, userID, id, normalizeTitle(title))
}

// AddMessage validates and stores one message. The stored copy carries a
// fresh server id regardless of what the client proposed, including the
// reserved welcome id.
func (s *SessionServiceImpl) AddMessage(ctx context.Context, userID uuid.UUID, sessionID string, msg model.Message) (model.Message, error) {
	if userID == uuid.Nil || sessionID == "" {
		return model.Message{}, errors.New("validation: empty userID/sessionID")
	}
	if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
		return model.Message{}, errors.New("validation: unknown role")
	}
	if strings.TrimSpace(msg.Content) == "" {
		return model.Message{}, errors.New("validation: empty content")
	}

	msg.ID = model.NewID()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if err := s.repo.AddMessage(ctx, userID, sessionID, &msg); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func normalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "新的对话"
	}
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen])
	}
	return title
}
