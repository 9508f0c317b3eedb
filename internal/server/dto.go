package server

import (
	"time"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// Wire types are snake_case. The client-side gateway decodes exactly these
// shapes; changing a tag here is an API break.

type sessionDTO struct {
	ID                string       `json:"id"`
	Title             string       `json:"title"`
	ConversationStyle string       `json:"conversation_style"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Messages          []messageDTO `json:"messages,omitempty"`
}

type messageDTO struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	Translation string          `json:"translation,omitempty"`
	Feedback    *model.Feedback `json:"feedback,omitempty"`
	AudioBase64 string          `json:"audio_base64,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type favoriteDTO struct {
	ID             string     `json:"id"`
	Text           string     `json:"text"`
	Translation    string     `json:"translation,omitempty"`
	Source         string     `json:"source"`
	Mastery        string     `json:"mastery"`
	ReviewCount    int        `json:"review_count"`
	CreatedAt      time.Time  `json:"created_at"`
	LastReviewedAt *time.Time `json:"last_reviewed_at,omitempty"`
}

func toSessionDTO(s model.Session) sessionDTO {
	d := sessionDTO{
		ID:                s.ID,
		Title:             s.Title,
		ConversationStyle: string(s.Style),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	for _, m := range s.Messages {
		d.Messages = append(d.Messages, toMessageDTO(m))
	}
	return d
}

func toMessageDTO(m model.Message) messageDTO {
	return messageDTO{
		ID:          m.ID,
		Role:        string(m.Role),
		Content:     m.Content,
		Translation: m.Translation,
		Feedback:    m.Feedback,
		AudioBase64: m.AudioBase64,
		CreatedAt:   m.CreatedAt,
	}
}

func toFavoriteDTO(f model.Favorite) favoriteDTO {
	return favoriteDTO{
		ID:             f.ID,
		Text:           f.Text,
		Translation:    f.Translation,
		Source:         string(f.Source),
		Mastery:        string(f.Mastery),
		ReviewCount:    f.ReviewCount,
		CreatedAt:      f.CreatedAt,
		LastReviewedAt: f.LastReviewedAt,
	}
}
