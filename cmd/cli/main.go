// Command kokoro is a terminal client for the kokoro language tutor.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yujiapingyu/kokoro/internal/assistant"
	"github.com/yujiapingyu/kokoro/internal/gateway/rest"
	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/store"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "kokoro")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kokoro")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	_ = os.MkdirAll(cfgDir(), 0o700)
	f, err := os.Create(tokenPath())
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// mustToken exits when not logged in.
func mustToken() string {
	tok, err := loadToken()
	if err != nil {
		fail(err)
	}
	return tok
}

// ---- auth endpoints (public, not part of the gateway client) ----

func postJSON(ctx context.Context, url string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func authRegister(ctx context.Context, baseURL, username, password string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := postJSON(ctx, baseURL+"/api/auth/register",
		map[string]string{"username": username, "password": password}, &out)
	return out.ID, err
}

func authLogin(ctx context.Context, baseURL, username, password string) (string, time.Time, error) {
	var out struct {
		AccessToken string    `json:"access_token"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	err := postJSON(ctx, baseURL+"/api/auth/login",
		map[string]string{"username": username, "password": password}, &out)
	if err != nil {
		return "", time.Time{}, err
	}

	exp := out.ExpiresAt
	if exp.IsZero() {
		// fall back to the exp claim
		var claims jwt.RegisteredClaims
		_, _ = jwt.ParseWithClaims(out.AccessToken, &claims, func(*jwt.Token) (any, error) { return nil, nil },
			jwt.WithoutClaimsValidation(),
		)
		exp = time.Now().Add(15 * time.Minute)
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
	}
	return out.AccessToken, exp, nil
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func newStore(token string) *store.Store {
	gw := rest.New(serverURL, func() string { return token })
	logger, _ := zap.NewDevelopment()
	return store.New(gw, gw, store.WithLogger(logger))
}

func usage() {
	fmt.Fprintf(os.Stderr, `kokoro CLI
Usage:
  kokoro [-server URL] [-assistant URL] <cmd> [args]

Commands:
  version
  register  -u <username> -p <password>
  login     -u <username> -p <password>          (saves token)
  sessions                                       (list sessions)
  show      -id <session>                        (print messages)
  rm        -id <session>
  clear                                          (delete all sessions)
  title     -id <session> -t <title>
  chat      [-style casual|formal]               (interactive session)
  favs                                           (list favorites)
  fav       -text <phrase> [-tr <translation>]
  unfav     -id <favorite>
  review    -id <favorite> [-ng]                 (-ng marks incorrect)
  cards                                          (flashcard review)
  export    [-o <file>]                          (markdown study sheet)
  tts       -text <phrase> -o <file>
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"

	serverURL    string
	assistantURL string
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// main dispatches subcommands.
func main() {
	// .env is developer convenience; absence is not an error
	_ = godotenv.Load()

	server := flag.String("server", envOr("KOKORO_SERVER", "http://localhost:8080"), "kokoro server URL")
	ai := flag.String("assistant", envOr("KOKORO_ASSISTANT", "http://localhost:8081"), "assistant service URL")
	flag.Usage = usage
	flag.Parse()
	serverURL, assistantURL = strings.TrimRight(*server, "/"), strings.TrimRight(*ai, "/")

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("kokoro %s (%s)\n", version, buildDate)

	case "register":
		fs := flag.NewFlagSet("register", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		id, err := authRegister(ctx, serverURL, *u, *p)
		if err != nil {
			fail(err)
		}
		fmt.Println(id)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		tok, exp, err := authLogin(ctx, serverURL, *u, *p)
		if err != nil {
			fail(err)
		}
		if err := saveToken(tok, exp); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "sessions":
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadSessions(ctx); err != nil {
			fail(err)
		}
		type row struct{ ID, Title, Style, UpdatedAt string }
		rows := []row{}
		for _, sess := range s.Sessions() {
			rows = append(rows, row{
				ID: sess.ID, Title: sess.Title, Style: string(sess.Style),
				UpdatedAt: sess.UpdatedAt.Local().Format(time.RFC3339),
			})
		}
		printJSON(rows)

	case "show":
		fs := flag.NewFlagSet("show", flag.ExitOnError)
		id := fs.String("id", "", "session id")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadSessions(ctx); err != nil {
			fail(err)
		}
		if !s.SetActiveSession(ctx, *id) {
			fail(fmt.Errorf("session %s not found", *id))
		}
		sess, _ := s.ActiveSession()
		for _, m := range sess.Messages {
			printMessage(m)
		}

	case "rm":
		fs := flag.NewFlagSet("rm", flag.ExitOnError)
		id := fs.String("id", "", "session id")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadSessions(ctx); err != nil {
			fail(err)
		}
		if err := s.DeleteSession(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "clear":
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadSessions(ctx); err != nil {
			fail(err)
		}
		if err := s.ClearSessions(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "title":
		fs := flag.NewFlagSet("title", flag.ExitOnError)
		id := fs.String("id", "", "session id")
		t := fs.String("t", "", "new title")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadSessions(ctx); err != nil {
			fail(err)
		}
		if err := s.UpdateSessionTitle(ctx, *id, *t); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "chat":
		fs := flag.NewFlagSet("chat", flag.ExitOnError)
		style := fs.String("style", "casual", "conversation style (casual|formal)")
		_ = fs.Parse(flag.Args()[1:])
		runChat(mustToken(), model.ConversationStyle(*style))

	case "favs":
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadFavorites(ctx); err != nil {
			fail(err)
		}
		printJSON(s.Favorites())

	case "fav":
		fs := flag.NewFlagSet("fav", flag.ExitOnError)
		text := fs.String("text", "", "phrase to bookmark")
		tr := fs.String("tr", "", "translation")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		fav, err := s.AddFavoriteFromSelection(ctx, *text, *tr)
		if err != nil {
			fail(err)
		}
		printJSON(fav)

	case "unfav":
		fs := flag.NewFlagSet("unfav", flag.ExitOnError)
		id := fs.String("id", "", "favorite id")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadFavorites(ctx); err != nil {
			fail(err)
		}
		if err := s.RemoveFavorite(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "review":
		fs := flag.NewFlagSet("review", flag.ExitOnError)
		id := fs.String("id", "", "favorite id")
		ng := fs.Bool("ng", false, "mark the review as incorrect")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadFavorites(ctx); err != nil {
			fail(err)
		}
		fav, err := s.UpdateFavoriteMastery(ctx, *id, !*ng)
		if err != nil {
			fail(err)
		}
		printJSON(fav)

	case "cards":
		runCards(mustToken())

	case "export":
		fs := flag.NewFlagSet("export", flag.ExitOnError)
		out := fs.String("o", "", "output file (default stdout)")
		_ = fs.Parse(flag.Args()[1:])
		s := newStore(mustToken())
		defer s.Close()
		if err := s.LoadFavorites(ctx); err != nil {
			fail(err)
		}
		md := s.ExportFavoritesMarkdown()
		if *out == "" {
			fmt.Print(md)
			break
		}
		if err := os.WriteFile(*out, []byte(md), 0o644); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "tts":
		fs := flag.NewFlagSet("tts", flag.ExitOnError)
		text := fs.String("text", "", "text to synthesize")
		out := fs.String("o", "", "output audio file")
		_ = fs.Parse(flag.Args()[1:])
		if *text == "" || *out == "" {
			fmt.Fprintln(os.Stderr, "need -text and -o")
			os.Exit(1)
		}
		ai := assistant.New(assistantURL)
		ttsCtx, ttsCancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer ttsCancel()
		b64, err := ai.TTS(ttsCtx, *text)
		if err != nil {
			fail(err)
		}
		audio, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			fail(fmt.Errorf("decode audio: %w", err))
		}
		if err := os.WriteFile(*out, audio, 0o644); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

func printMessage(m model.Message) {
	role := "you"
	if m.Role == model.RoleAssistant {
		role = " ai"
	}
	fmt.Printf("[%s] %s\n", role, m.Content)
	if m.Translation != "" {
		fmt.Printf("      %s\n", m.Translation)
	}
	if m.Feedback != nil {
		fmt.Printf("      ✎ %s (%d/100) %s\n",
			m.Feedback.CorrectedSentence, m.Feedback.NaturalnessScore, m.Feedback.Explanation)
	}
}

// runChat is the interactive loop: each line goes through the store, then to
// the assistant, and the reply is applied back. The first user message of a
// session also triggers title generation.
func runChat(token string, style model.ConversationStyle) {
	ctx := context.Background()
	s := newStore(token)
	defer s.Close()
	ai := assistant.New(assistantURL)

	s.SetConversationStyle(style)
	if err := s.LoadSessions(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not load history:", err)
	}
	if err := s.LoadFavorites(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not load favorites:", err)
	}

	sess := s.CreateSession(ctx)
	for _, m := range sess.Messages {
		printMessage(m)
	}
	fmt.Println(`(type /quit to leave, /fav to bookmark the last reply, /style casual|formal)`)

	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			s.Flush()
			return
		case line == "/fav":
			favLastReply(ctx, s)
			continue
		case strings.HasPrefix(line, "/style "):
			st := model.ConversationStyle(strings.TrimSpace(strings.TrimPrefix(line, "/style ")))
			if st != model.StyleCasual && st != model.StyleFormal {
				fmt.Println("style must be casual or formal")
				continue
			}
			s.SetConversationStyle(st)
			continue
		}

		if s.IsSending() {
			continue
		}
		msg, ok := s.AppendUserMessage(ctx, line)
		if !ok {
			continue
		}
		active, _ := s.ActiveSession()
		firstTurn := countUserMessages(active) == 1

		s.MarkSending(true)
		window := s.RollingWindow()
		turns := make([]assistant.TurnMessage, 0, len(window))
		for _, m := range window {
			turns = append(turns, assistant.TurnMessage{Role: m.Role, Content: m.Content})
		}

		chatCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		resp, err := ai.Chat(chatCtx, active.ID, turns, s.ConversationStyle())
		cancel()
		if err != nil {
			s.MarkSending(false)
			fmt.Fprintln(os.Stderr, "assistant error:", err)
			continue
		}

		reply, _ := s.ApplyAIResponse(ctx, resp)
		printMessage(reply)
		s.MarkSending(false)

		if firstTurn {
			titleCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			title, err := ai.Title(titleCtx, msg.Content+"\n"+resp.Reply)
			cancel()
			if err == nil && title != "" {
				if err := s.UpdateSessionTitle(ctx, active.ID, title); err != nil {
					fmt.Fprintln(os.Stderr, "warning: title not saved:", err)
				}
			}
		}
	}
	s.Flush()
}

// favLastReply bookmarks the most recent assistant reply of the active
// session.
func favLastReply(ctx context.Context, s *store.Store) {
	sess, ok := s.ActiveSession()
	if !ok {
		fmt.Println("nothing to bookmark")
		return
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		m := sess.Messages[i]
		if m.Role != model.RoleAssistant || m.ID == model.WelcomeMessageID {
			continue
		}
		fav, err := s.AddFavoriteFromMessage(ctx, m.ID, model.SourceAIReply, m.Content, m.Translation)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bookmark failed:", err)
			return
		}
		fmt.Printf("bookmarked: %s\n", fav.Text)
		return
	}
	fmt.Println("nothing to bookmark")
}

func countUserMessages(sess model.Session) int {
	n := 0
	for _, m := range sess.Messages {
		if m.Role == model.RoleUser {
			n++
		}
	}
	return n
}

// runCards walks the review deck: space/enter flips forward, o marks the
// card known, x marks it missed.
func runCards(token string) {
	ctx := context.Background()
	s := newStore(token)
	defer s.Close()
	if err := s.LoadFavorites(ctx); err != nil {
		fail(err)
	}
	favs := s.Favorites()
	if len(favs) == 0 {
		fmt.Println("no favorites yet")
		return
	}
	fmt.Println("(enter=next, p=previous, o=knew it, x=missed it, q=quit)")

	sc := bufio.NewScanner(os.Stdin)
	for {
		favs = s.Favorites()
		if len(favs) == 0 {
			return
		}
		cur := favs[s.FlashcardIndex()]
		fmt.Printf("[%d/%d %s] %s\n", s.FlashcardIndex()+1, len(favs), cur.Mastery, cur.Text)
		if cur.Translation != "" {
			fmt.Printf("  %s\n", cur.Translation)
		}

		if !sc.Scan() {
			return
		}
		switch strings.TrimSpace(sc.Text()) {
		case "q":
			return
		case "p":
			s.UpdateFlashcardIndex(-1)
		case "o", "x":
			correct := strings.TrimSpace(sc.Text()) == "o"
			if _, err := s.UpdateFavoriteMastery(ctx, cur.ID, correct); err != nil {
				fmt.Fprintln(os.Stderr, "review not recorded:", err)
			}
			s.UpdateFlashcardIndex(1)
		default:
			s.UpdateFlashcardIndex(1)
		}
	}
}
