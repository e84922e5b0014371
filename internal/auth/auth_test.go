package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/castmind/castmind/internal/auth"
)

func TestRegisterAndLogin(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	session, err := svc.Register(context.Background(), "alice", "s3cret!")
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected token on registration")
	}
	if session.User.Username != "alice" || session.User.ID == "" {
		t.Fatalf("unexpected user: %+v", session.User)
	}

	claims, err := svc.VerifyToken(session.Token)
	if err != nil {
		t.Fatalf("verify token failed: %v", err)
	}
	if claims.Subject != session.User.ID {
		t.Fatalf("token subject %q, want %q", claims.Subject, session.User.ID)
	}

	if _, err := svc.Register(context.Background(), "Alice", "another!"); !errors.Is(err, auth.ErrUserExists) {
		t.Fatalf("expected duplicate user error, got %v", err)
	}

	login, err := svc.Login(context.Background(), "alice", "s3cret!")
	if err != nil {
		t.Fatalf("login returned error: %v", err)
	}
	if login.Token == "" {
		t.Fatal("expected token on login")
	}

	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	if _, err := svc.Register(context.Background(), "", "s3cret!"); !errors.Is(err, auth.ErrUsernameRequired) {
		t.Fatalf("expected username error, got %v", err)
	}
	if _, err := svc.Register(context.Background(), "bob", "short"); !errors.Is(err, auth.ErrPasswordTooWeak) {
		t.Fatalf("expected weak password error, got %v", err)
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := auth.NewService("  ", time.Hour); !errors.Is(err, auth.ErrSecretRequired) {
		t.Fatalf("expected secret error, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc, err := auth.NewService("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error creating auth service: %v", err)
	}

	session, err := svc.Register(context.Background(), "carol", "s3cret!")
	if err != nil {
		t.Fatalf("register returned error: %v", err)
	}

	router := gin.New()
	router.GET("/guarded", auth.Middleware(svc, true), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	router.GET("/open", auth.Middleware(svc, false), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected middleware no-op when not required, got %d", rec.Code)
	}
}
