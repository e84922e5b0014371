// Package auth issues and verifies the JWT bearer tokens that guard the
// chat endpoints. Accounts live in process memory; there is no user
// database behind this service.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrSecretRequired     = errors.New("auth: jwt secret required")
	ErrUsernameRequired   = errors.New("auth: username is required")
	ErrPasswordTooWeak    = errors.New("auth: password must be at least 6 characters")
	ErrUserExists         = errors.New("auth: user already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// User is an application account. PasswordHash never leaves the package.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time

	passwordHash string
}

// Session is a freshly issued token with its owner.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Service registers users and exchanges credentials for signed tokens.
type Service struct {
	secret []byte
	ttl    time.Duration

	mu    sync.RWMutex
	users map[string]*User
}

func NewService(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		users:  make(map[string]*User),
	}, nil
}

// Register creates an account and returns a live session for it.
func (s *Service) Register(_ context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(strings.TrimSpace(password)) < 6 {
		return nil, ErrPasswordTooWeak
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Username:     username,
		CreatedAt:    time.Now().UTC(),
		passwordHash: string(hash),
	}

	key := strings.ToLower(username)

	s.mu.Lock()
	if _, exists := s.users[key]; exists {
		s.mu.Unlock()
		return nil, ErrUserExists
	}
	s.users[key] = user
	s.mu.Unlock()

	return s.newSession(user)
}

// Login verifies credentials and returns a fresh session.
func (s *Service) Login(_ context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	s.mu.RLock()
	user := s.users[strings.ToLower(username)]
	s.mu.RUnlock()

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.newSession(user)
}

// VerifyToken parses and validates a bearer token, returning its claims.
func (s *Service) VerifyToken(token string) (*jwt.RegisteredClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) newSession(user *User) (*Session, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &Session{Token: signed, ExpiresAt: expiresAt, User: *user}, nil
}
