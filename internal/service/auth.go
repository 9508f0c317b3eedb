// Package service contains application services for authentication, chat
// sessions, and the favorites review deck.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/yujiapingyu/kokoro/internal/crypto"
	"github.com/yujiapingyu/kokoro/internal/errs"
	"github.com/yujiapingyu/kokoro/internal/model"
	"github.com/yujiapingyu/kokoro/internal/repository"
)

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, username, password string) (userID string, err error)
	// Login authenticates the user and issues an access token.
	Login(ctx context.Context, username, password string) (tokens model.Tokens, user model.User, err error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	signKey   []byte
	accessTTL time.Duration
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, signKey []byte, accessTTL time.Duration) *AuthServiceImpl {
	return &AuthServiceImpl{users: users, signKey: signKey, accessTTL: accessTTL}
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errors.New("empty username/password")
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	saltAuth, err := pkgcrypto.RandBytes(pkgcrypto.SaltLen)
	if err != nil {
		return "", err
	}
	u := &model.User{
		ID:       uid,
		Username: username,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), saltAuth),
		SaltAuth: saltAuth,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return "", err
	}
	return uid.String(), nil
}

// Login verifies the password and issues a signed access token.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (model.Tokens, model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		// lookup errors and wrong passwords are indistinguishable to the
		// caller, hiding account existence
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	access, exp, err := s.issueAccessToken(u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, *u, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
