// Package assistant is the client for the remote Chat/TTS/Title service.
// It is consumed by the orchestration layer (the CLI), never by the store:
// the store only talks to the persistence gateway.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// TurnMessage is the minimal message shape the chat endpoint consumes.
type TurnMessage struct {
	Role    model.MessageRole `json:"role"`
	Content string            `json:"content"`
}

// Service generates assistant replies, speech audio, and session titles.
type Service interface {
	// Chat sends the rolling context window and returns the reply with
	// correction feedback for the last user message.
	Chat(ctx context.Context, sessionID string, messages []TurnMessage, style model.ConversationStyle) (model.AIResponse, error)

	// TTS synthesizes speech for the given text and returns base64 audio.
	TTS(ctx context.Context, text string) (string, error)

	// Title produces a short session title from a transcript.
	Title(ctx context.Context, transcript string) (string, error)
}

// Client implements Service over the assistant REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Service = (*Client)(nil)

// New creates an assistant client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		// Model responses routinely take tens of seconds.
		http: &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Chat(ctx context.Context, sessionID string, messages []TurnMessage, style model.ConversationStyle) (model.AIResponse, error) {
	req := struct {
		SessionID string                  `json:"sessionId"`
		Messages  []TurnMessage           `json:"messages"`
		Style     model.ConversationStyle `json:"style"`
	}{SessionID: sessionID, Messages: messages, Style: style}

	var out model.AIResponse
	if err := c.post(ctx, "/chat", req, &out); err != nil {
		return model.AIResponse{}, fmt.Errorf("assistant chat: %w", err)
	}
	return out, nil
}

func (c *Client) TTS(ctx context.Context, text string) (string, error) {
	req := struct {
		Text string `json:"text"`
	}{Text: text}
	var out struct {
		AudioBase64 string `json:"audioBase64"`
	}
	if err := c.post(ctx, "/tts", req, &out); err != nil {
		return "", fmt.Errorf("assistant tts: %w", err)
	}
	return out.AudioBase64, nil
}

func (c *Client) Title(ctx context.Context, transcript string) (string, error) {
	req := struct {
		Transcript string `json:"transcript"`
	}{Transcript: transcript}
	var out struct {
		Title string `json:"title"`
	}
	if err := c.post(ctx, "/title", req, &out); err != nil {
		return "", fmt.Errorf("assistant title: %w", err)
	}
	return out.Title, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
