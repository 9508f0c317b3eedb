package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/repository"
)

type fakeUsers struct {
	byName map[string]*model.User

	createErr error
	getErr    error
}

var _ repository.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if f.byName == nil {
		f.byName = map[string]*model.User{}
	}
	if _, exists := f.byName[u.Username]; exists {
		return errs.ErrAlreadyExists
	}
	cpy := *u
	f.byName[u.Username] = &cpy
	return nil
}
func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	for _, u := range f.byName {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}
func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byName[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *u
	return &c, nil
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, []byte("k"), time.Minute)

	if _, err := s.Register(context.Background(), "", ""); err == nil {
		t.Fatalf("want validation error on empty username/password")
	}

	id, err := s.Register(context.Background(), "alice", "pwd")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if id == "" {
		t.Fatalf("want non-empty user id")
	}
	stored := users.byName["alice"]
	if stored == nil {
		t.Fatalf("user not stored")
	}
	if len(stored.PwdHash) == 0 || len(stored.SaltAuth) == 0 {
		t.Fatalf("want hashed password and salt, got hash=%d salt=%d", len(stored.PwdHash), len(stored.SaltAuth))
	}

	if _, err := s.Register(context.Background(), "alice", "other"); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestAuth_Login_SuccessAndTokenClaims(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	key := []byte("signing-key")
	s := NewAuthService(users, key, time.Minute)

	if _, err := s.Register(context.Background(), "alice", "pwd"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tokens, u, err := s.Login(context.Background(), "alice", "pwd")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("want user alice, got %q", u.Username)
	}
	if !tokens.ExpiresAt.After(time.Now()) {
		t.Fatalf("token already expired: %v", tokens.ExpiresAt)
	}

	parsed, err := jwt.ParseWithClaims(tokens.AccessToken, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("parse token: %v", err)
	}
	claims := parsed.Claims.(*jwt.RegisteredClaims)
	if claims.Subject != u.ID.String() {
		t.Fatalf("want sub=%s, got %s", u.ID, claims.Subject)
	}
}

func TestAuth_Login_Failures(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{byName: map[string]*model.User{}}
	s := NewAuthService(users, []byte("k"), time.Minute)

	if _, err := s.Register(context.Background(), "alice", "pwd"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Wrong password and unknown user look the same.
	if _, _, err := s.Login(context.Background(), "alice", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}
	if _, _, err := s.Login(context.Background(), "nobody", "pwd"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on unknown user, got %v", err)
	}

	// Repository failure is also masked.
	users.getErr = errors.New("db down")
	if _, _, err := s.Login(context.Background(), "alice", "pwd"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on repo error, got %v", err)
	}
}
