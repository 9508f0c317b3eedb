package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// SessionRepository provides per-user access to chat sessions and their
// messages. Every operation is scoped by user id; a session owned by another
// user behaves exactly like a missing one.
type SessionRepository interface {
	// List returns the user's sessions without messages, most recent first.
	List(ctx context.Context, userID uuid.UUID) ([]model.Session, error)
	// Create inserts a new session row.
	Create(ctx context.Context, userID uuid.UUID, sess *model.Session) error
	// Get loads one session with its full message list in append order.
	Get(ctx context.Context, userID uuid.UUID, id string) (*model.Session, error)
	// Delete removes a session and its messages.
	Delete(ctx context.Context, userID uuid.UUID, id string) error
	// UpdateTitle renames a session.
	UpdateTitle(ctx context.Context, userID uuid.UUID, id, title string) error
	// AddMessage appends a message to a session and bumps its updated_at.
	AddMessage(ctx context.Context, userID uuid.UUID, sessionID string, msg *model.Message) error
}
