// Package model defines domain entities shared by the client store, the
// gateway clients, and the server-side services.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// MessageRole distinguishes the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationStyle selects the register the assistant replies in.
type ConversationStyle string

const (
	StyleCasual ConversationStyle = "casual"
	StyleFormal ConversationStyle = "formal"
)

// Mastery is the spaced-repetition progression level of a favorite.
type Mastery string

const (
	MasteryNew      Mastery = "new"
	MasteryLearning Mastery = "learning"
	MasteryReview   Mastery = "review"
	MasteryMastered Mastery = "mastered"
)

// WelcomeMessageID is the reserved id of the synthesized opening message.
// Messages with this id are never offered for bookmarking and are replaced
// by a server-assigned id once persisted.
const WelcomeMessageID = "welcome"

// Feedback is the correction card attached to an assistant reply. It refers
// to the user message immediately preceding that reply.
type Feedback struct {
	CorrectedSentence string `json:"correctedSentence"`
	Explanation       string `json:"explanation"`
	NaturalnessScore  int    `json:"naturalnessScore"`
}

// AIResponse is the assistant service's answer to one chat turn.
type AIResponse struct {
	Reply            string    `json:"reply"`
	ReplyTranslation string    `json:"replyTranslation"`
	Feedback         *Feedback `json:"feedback,omitempty"`
	AudioBase64      string    `json:"audioBase64,omitempty"`
}

// Message is a single chat turn. Messages are immutable once appended except
// for AudioBase64, which is filled in lazily after the first playback request.
type Message struct {
	ID          string
	Role        MessageRole
	Content     string
	Translation string
	Feedback    *Feedback
	AudioBase64 string
	CreatedAt   time.Time
}

// MessagePatch carries the patchable message fields for Store.UpdateMessage.
type MessagePatch struct {
	AudioBase64 *string
}

// Session is an ordered conversation. Its ID is either a client-generated
// temporary id or a server-assigned id, never both; materialization rewrites
// the former into the latter exactly once.
type Session struct {
	ID        string
	Title     string
	Style     ConversationStyle
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []Message
}

// FavoriteSource records where a favorite was captured from.
type FavoriteSource string

const (
	SourceAIReply    FavoriteSource = "ai-reply"
	SourceAIFeedback FavoriteSource = "ai-feedback"
	SourceSelection  FavoriteSource = "selection"
)

// Favorite is a bookmarked phrase in the personal review deck. The
// authoritative copy lives server-side; the store keeps a cache.
type Favorite struct {
	ID             string
	Text           string
	Translation    string
	Note           string
	Source         FavoriteSource
	Mastery        Mastery
	ReviewCount    int
	CreatedAt      time.Time
	LastReviewedAt *time.Time
}

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// User represents an account stored on the server.
type User struct {
	ID        uuid.UUID
	Username  string
	PwdHash   []byte
	SaltAuth  []byte
	CreatedAt time.Time
}

// NewID returns a fresh random identifier in string form. Local (temporary)
// and server-assigned ids share this format; they are distinguished only by
// the materialized set, never by shape.
func NewID() string {
	return uuid.Must(uuid.NewV4()).String()
}
