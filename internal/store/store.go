// Package store is the single authority over local chat state: sessions,
// messages, favorites, and UI flags. All mutations pass through it, and it is
// the only component that talks to the persistence gateway for chat and
// favorite data.
//
// Mutations apply to local state synchronously; persistence happens through a
// FIFO outbox afterwards. Failed best-effort writes are logged and dropped,
// never rolled back: content the user has already seen stays on screen.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/gateway"
	"github.com/yujiapingyu/kokoro/internal/model"
)

const (
	defaultSessionTitle = "新的对话"

	welcomeContent     = "こんにちは！私は Kokoro Coach です。请用日语聊聊你今天的状态或想练习的场景，我会用中文解释语法并给出口语建议。"
	welcomeTranslation = "你好！我是 Kokoro Coach。先用日语介绍一下你的情况或今天想练习的内容吧，我会结合中文说明和口语评分来协助你。"

	// rollingWindowSize bounds the context sent to the assistant service.
	rollingWindowSize = 12
)

// Store holds the in-memory session/favorite state and reconciles it with
// the remote persistence gateway. Construct with New; the zero value is not
// usable.
type Store struct {
	log      *zap.Logger
	sessions gateway.SessionGateway
	deck     gateway.FavoriteGateway
	now      func() time.Time
	newID    func() string

	outbox *outbox
	mat    *materializer

	mu           sync.Mutex
	list         []*model.Session
	activeID     string
	favorites    []*model.Favorite
	materialized map[string]struct{}
	aliases      map[string]string // temporary id -> server-assigned id
	flashcard    int
	style        model.ConversationStyle
	sending      bool
	sidebarOpen  bool
	favsOpen     bool
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger replaces the default Nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator injects an id source for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// persistAttempts is the bounded retry for best-effort message writes.
// Materialization is never retried by the outbox: re-running a half-finished
// creation could create a second remote session.
const persistAttempts = 3

// New constructs a store with injected gateway clients.
func New(sessions gateway.SessionGateway, deck gateway.FavoriteGateway, opts ...Option) *Store {
	s := &Store{
		log:          zap.NewNop(),
		sessions:     sessions,
		deck:         deck,
		now:          time.Now,
		newID:        model.NewID,
		mat:          &materializer{},
		materialized: make(map[string]struct{}),
		aliases:      make(map[string]string),
		style:        model.StyleCasual,
		sidebarOpen:  true,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = newOutbox(s.log, 250*time.Millisecond)
	return s
}

// Flush blocks until all queued persistence work has been attempted.
func (s *Store) Flush() { s.outbox.flush() }

// Close drains pending writes and stops the outbox worker.
func (s *Store) Close() { s.outbox.close() }

// ---- loading ----

// LoadSessions replaces the local session list with the authoritative one,
// hydrating each session's full message list. On error the local state is
// left untouched so "no sessions yet" (empty success) stays distinguishable
// from "fetch failed".
func (s *Store) LoadSessions(ctx context.Context) error {
	listed, err := s.sessions.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	hydrated := make([]*model.Session, 0, len(listed))
	for _, sess := range listed {
		full, err := s.sessions.GetSession(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("load sessions: hydrate %s: %w", sess.ID, err)
		}
		hydrated = append(hydrated, &full)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = hydrated
	for _, sess := range hydrated {
		s.materialized[sess.ID] = struct{}{}
	}
	if s.findLocked(s.activeID) == nil {
		s.activeID = ""
		if len(hydrated) > 0 {
			s.activeID = hydrated[0].ID
		}
	}
	return nil
}

// LoadFavorites replaces the local review deck wholesale.
func (s *Store) LoadFavorites(ctx context.Context) error {
	favs, err := s.deck.ListFavorites(ctx)
	if err != nil {
		return fmt.Errorf("load favorites: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites = s.favorites[:0]
	for _, f := range favs {
		f := f
		s.favorites = append(s.favorites, &f)
	}
	if s.flashcard >= len(s.favorites) {
		s.flashcard = 0
	}
	return nil
}

// ---- sessions ----

func (s *Store) welcomeMessage() model.Message {
	return model.Message{
		ID:          model.WelcomeMessageID,
		Role:        model.RoleAssistant,
		Content:     welcomeContent,
		Translation: welcomeTranslation,
		CreatedAt:   s.now(),
	}
}

// CreateSession creates a session remotely and seeds it with the synthesized
// welcome message. When the gateway is unreachable the session is created
// locally with a temporary id so the user is never blocked from typing; it
// materializes on the first message (see appendUserMessage).
func (s *Store) CreateSession(ctx context.Context) model.Session {
	s.mu.Lock()
	style := s.style
	s.mu.Unlock()

	welcome := s.welcomeMessage()
	sess := &model.Session{
		Title:     defaultSessionTitle,
		Style:     style,
		CreatedAt: welcome.CreatedAt,
		UpdatedAt: welcome.CreatedAt,
		Messages:  []model.Message{welcome},
	}

	created, err := s.sessions.CreateSession(ctx, sess.Title, style)
	if err != nil {
		sess.ID = s.newID()
		s.log.Warn("session creation failed, continuing locally",
			zap.String("session", sess.ID), zap.Error(err))
	} else {
		sess.ID = created.ID
	}

	s.mu.Lock()
	s.list = append([]*model.Session{sess}, s.list...)
	s.activeID = sess.ID
	if err == nil {
		s.materialized[sess.ID] = struct{}{}
	}
	s.mu.Unlock()

	if err == nil {
		s.enqueueMessagePersist(sess, welcome)
	}
	return snapshotSession(sess)
}

// SetActiveSession switches the active pointer and, for sessions known to the
// gateway, refreshes the message list to pick up anything the client missed.
// A refresh failure degrades to the stale local copy.
func (s *Store) SetActiveSession(ctx context.Context, id string) bool {
	s.mu.Lock()
	id = s.resolveLocked(id)
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	s.activeID = id
	_, remote := s.materialized[id]
	s.mu.Unlock()

	if !remote {
		return true
	}

	full, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		s.log.Warn("session refresh failed, keeping stale copy",
			zap.String("session", id), zap.Error(err))
		return true
	}

	s.mu.Lock()
	if cur := s.findLocked(id); cur != nil {
		cur.Title = full.Title
		cur.UpdatedAt = full.UpdatedAt
		cur.Messages = full.Messages
	}
	s.mu.Unlock()
	return true
}

// DeleteSession deletes remotely first; local state changes only after the
// gateway acknowledges. The error is surfaced, never swallowed.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	id = s.resolveLocked(id)
	sess := s.findLocked(id)
	_, remote := s.materialized[id]
	s.mu.Unlock()
	if sess == nil {
		return errs.ErrSessionNotFound
	}

	if remote {
		if err := s.sessions.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("delete session %s: %w", id, err)
		}
	}

	s.mu.Lock()
	s.removeSessionLocked(id)
	s.mu.Unlock()
	return nil
}

// ClearSessions deletes every session best-effort. Only sessions whose remote
// delete succeeded (or that never existed remotely) are removed locally; the
// joined error reports the rest.
func (s *Store) ClearSessions(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.list))
	for _, sess := range s.list {
		ids = append(ids, sess.ID)
	}
	s.mu.Unlock()

	var errList []error
	for _, id := range ids {
		s.mu.Lock()
		_, remote := s.materialized[id]
		s.mu.Unlock()

		if remote {
			if err := s.sessions.DeleteSession(ctx, id); err != nil {
				errList = append(errList, fmt.Errorf("clear session %s: %w", id, err))
				continue
			}
		}
		s.mu.Lock()
		s.removeSessionLocked(id)
		s.mu.Unlock()
	}
	return errors.Join(errList...)
}

// AppendUserMessage appends the user's text to the active session and queues
// persistence. It returns false when the text is empty or no session exists;
// that is a guard, not an error — the UI ensures a session before input.
func (s *Store) AppendUserMessage(ctx context.Context, text string) (model.Message, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, false
	}

	s.mu.Lock()
	sess := s.ensureActiveLocked()
	if sess == nil {
		s.mu.Unlock()
		return model.Message{}, false
	}

	msg := model.Message{
		ID:        s.newID(),
		Role:      model.RoleUser,
		Content:   text,
		CreatedAt: s.now(),
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = msg.CreatedAt
	_, remote := s.materialized[sess.ID]
	s.mu.Unlock()

	if remote {
		s.enqueueMessagePersist(sess, msg)
		return msg, true
	}

	// Pending session: the first message starts materialization, at most
	// once. Later messages ride the FIFO behind it.
	if l, started := s.mat.begin(); started {
		s.outbox.enqueue("materialize session", 1, func(ctx context.Context) error {
			return s.materialize(ctx, l, sess, msg)
		})
	} else {
		s.enqueueMessagePersist(sess, msg)
	}
	return msg, true
}

// materialize creates the remote session, rewrites the local identifier in
// place to the server-assigned value, then persists the welcome message and
// the triggering user message in order.
func (s *Store) materialize(ctx context.Context, l *latch, sess *model.Session, trigger model.Message) error {
	s.mu.Lock()
	tempID := sess.ID
	title, style := sess.Title, sess.Style
	var welcome *model.Message
	for i := range sess.Messages {
		if sess.Messages[i].ID == model.WelcomeMessageID {
			w := sess.Messages[i]
			welcome = &w
			break
		}
	}
	s.mu.Unlock()

	created, err := s.sessions.CreateSession(ctx, title, style)
	if err != nil {
		s.mat.finish(l, "", err)
		return fmt.Errorf("materialize session %s: %w", tempID, err)
	}

	s.mu.Lock()
	sess.ID = created.ID
	s.aliases[tempID] = created.ID
	if s.activeID == tempID {
		s.activeID = created.ID
	}
	s.materialized[created.ID] = struct{}{}
	s.mu.Unlock()

	// Post-creation persists are best-effort like any optimistic write.
	if welcome != nil {
		if _, err := s.sessions.AddMessage(ctx, created.ID, *welcome); err != nil {
			s.log.Warn("welcome message not persisted",
				zap.String("session", created.ID), zap.Error(err))
		}
	}
	if _, err := s.sessions.AddMessage(ctx, created.ID, trigger); err != nil {
		s.log.Warn("user message not persisted",
			zap.String("session", created.ID), zap.Error(err))
	}

	s.mat.finish(l, created.ID, nil)
	return nil
}

// ApplyAIResponse appends the assistant reply to the active session with a
// fresh local id (message ids are never reconciled with server ids) and
// queues persistence behind any in-flight materialization. The message is
// returned for side effects such as auto-playback even if persistence later
// fails.
func (s *Store) ApplyAIResponse(ctx context.Context, payload model.AIResponse) (model.Message, bool) {
	s.mu.Lock()
	sess := s.ensureActiveLocked()
	if sess == nil {
		s.mu.Unlock()
		return model.Message{}, false
	}

	msg := model.Message{
		ID:          s.newID(),
		Role:        model.RoleAssistant,
		Content:     payload.Reply,
		Translation: payload.ReplyTranslation,
		Feedback:    payload.Feedback,
		AudioBase64: payload.AudioBase64,
		CreatedAt:   s.now(),
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = msg.CreatedAt
	s.mu.Unlock()

	s.enqueueMessagePersist(sess, msg)
	return msg, true
}

// enqueueMessagePersist queues one AddMessage write. The session id is
// re-read at execution time: materialization may have rewritten it since.
// FIFO ordering guarantees any materialization queued earlier has finished,
// so an unmaterialized session here means creation failed and the write is
// dropped (and logged) rather than misaddressed.
func (s *Store) enqueueMessagePersist(sess *model.Session, msg model.Message) {
	s.outbox.enqueue("persist message", persistAttempts, func(ctx context.Context) error {
		s.mu.Lock()
		id := sess.ID
		_, remote := s.materialized[id]
		s.mu.Unlock()
		if !remote {
			return fmt.Errorf("session %s never materialized", id)
		}
		if _, err := s.sessions.AddMessage(ctx, id, msg); err != nil {
			return fmt.Errorf("persist message in %s: %w", id, err)
		}
		return nil
	})
}

// UpdateMessage applies a local-only patch (audio caching); patches are
// never persisted to the gateway.
func (s *Store) UpdateMessage(id string, patch model.MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.list {
		for i := range sess.Messages {
			if sess.Messages[i].ID != id {
				continue
			}
			if patch.AudioBase64 != nil {
				sess.Messages[i].AudioBase64 = *patch.AudioBase64
			}
			return
		}
	}
}

// UpdateSessionTitle waits out any in-flight materialization, persists the
// title remotely, and updates local state only on success. A materialization
// failure propagates to this caller.
func (s *Store) UpdateSessionTitle(ctx context.Context, id, title string) error {
	if l := s.mat.current(); l != nil {
		if _, err := l.await(ctx); err != nil {
			return fmt.Errorf("update title: %w", err)
		}
	}

	s.mu.Lock()
	id = s.resolveLocked(id)
	sess := s.findLocked(id)
	s.mu.Unlock()
	if sess == nil {
		return errs.ErrSessionNotFound
	}

	if err := s.sessions.UpdateTitle(ctx, id, title); err != nil {
		return fmt.Errorf("update title %s: %w", id, err)
	}

	s.mu.Lock()
	if cur := s.findLocked(id); cur != nil {
		cur.Title = title
	}
	s.mu.Unlock()
	return nil
}

// ---- snapshots and UI state ----

// Sessions returns a copy of the session list, newest first.
func (s *Store) Sessions() []model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Session, 0, len(s.list))
	for _, sess := range s.list {
		out = append(out, snapshotSession(sess))
	}
	return out
}

// ActiveSession returns the active session, falling back to the first one
// when the active pointer is stale.
func (s *Store) ActiveSession() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureActiveLocked()
	if sess == nil {
		return model.Session{}, false
	}
	return snapshotSession(sess), true
}

// RollingWindow returns the last messages of the active session to use as
// assistant context.
func (s *Store) RollingWindow() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.ensureActiveLocked()
	if sess == nil {
		return nil
	}
	msgs := sess.Messages
	if len(msgs) > rollingWindowSize {
		msgs = msgs[len(msgs)-rollingWindowSize:]
	}
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// MarkSending flips the in-flight request flag.
func (s *Store) MarkSending(flag bool) {
	s.mu.Lock()
	s.sending = flag
	s.mu.Unlock()
}

// IsSending reports whether a chat request is in flight.
func (s *Store) IsSending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// SetConversationStyle selects the register for subsequent exchanges.
func (s *Store) SetConversationStyle(style model.ConversationStyle) {
	s.mu.Lock()
	s.style = style
	s.mu.Unlock()
}

// ConversationStyle returns the current register.
func (s *Store) ConversationStyle() model.ConversationStyle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// SetSidebarOpen flips the sidebar flag.
func (s *Store) SetSidebarOpen(flag bool) {
	s.mu.Lock()
	s.sidebarOpen = flag
	s.mu.Unlock()
}

// SidebarOpen reports the sidebar flag.
func (s *Store) SidebarOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebarOpen
}

// SetFavoritesOpen flips the favorites drawer flag.
func (s *Store) SetFavoritesOpen(flag bool) {
	s.mu.Lock()
	s.favsOpen = flag
	s.mu.Unlock()
}

// FavoritesOpen reports the favorites drawer flag.
func (s *Store) FavoritesOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favsOpen
}

// ---- locked helpers ----

// ensureActiveLocked resolves the active session, falling back to the first
// available one. It never fabricates a session: no sessions means nil.
func (s *Store) ensureActiveLocked() *model.Session {
	if sess := s.findLocked(s.activeID); sess != nil {
		return sess
	}
	if len(s.list) == 0 {
		return nil
	}
	s.activeID = s.list[0].ID
	return s.list[0]
}

func (s *Store) findLocked(id string) *model.Session {
	if id == "" {
		return nil
	}
	for _, sess := range s.list {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// resolveLocked follows the temporary-to-server alias left behind by
// materialization, so callers holding a pre-rewrite id still address the
// right session.
func (s *Store) resolveLocked(id string) string {
	if server, ok := s.aliases[id]; ok {
		return server
	}
	return id
}

func (s *Store) removeSessionLocked(id string) {
	for i, sess := range s.list {
		if sess.ID != id {
			continue
		}
		s.list = append(s.list[:i], s.list[i+1:]...)
		break
	}
	delete(s.materialized, id)
	for temp, server := range s.aliases {
		if server == id {
			delete(s.aliases, temp)
		}
	}
	if s.activeID == id {
		s.activeID = ""
		if len(s.list) > 0 {
			s.activeID = s.list[0].ID
		}
	}
}

func snapshotSession(sess *model.Session) model.Session {
	out := *sess
	out.Messages = make([]model.Message, len(sess.Messages))
	copy(out.Messages, sess.Messages)
	return out
}
