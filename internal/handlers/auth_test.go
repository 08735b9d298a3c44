package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lingopals/backend/internal/auth"
	"github.com/lingopals/backend/internal/models"
)

type stubSessionManager struct {
	issued     string
	refreshed  string
	refreshErr error
}

func (s *stubSessionManager) Issue(_ context.Context, userID string) (models.SessionTokens, error) {
	s.issued = userID
	return models.SessionTokens{
		AccessToken:      "access-" + userID,
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:     "refresh-" + userID,
		RefreshExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (s *stubSessionManager) Refresh(_ context.Context, refreshToken string) (models.SessionTokens, error) {
	if s.refreshErr != nil {
		return models.SessionTokens{}, s.refreshErr
	}
	s.refreshed = refreshToken
	return models.SessionTokens{AccessToken: "access-new", RefreshToken: "refresh-new"}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hashed)
}

func TestSignUp(t *testing.T) {
	store := newMemoryUserStore()
	sessions := &stubSessionManager{}
	handler := AuthHandler{Users: store, Sessions: sessions}

	body := map[string]string{
		"fullName": "Mia Tanaka",
		"email":    "Mia@Example.com",
		"password": "password123",
	}

	rec := httptest.NewRecorder()
	handler.SignUp(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/signup", "", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	user, err := store.FindByEmail(context.Background(), "mia@example.com")
	if err != nil {
		t.Fatalf("expected user persisted with lowercased email: %v", err)
	}
	if user.FullName != "Mia Tanaka" {
		t.Fatalf("unexpected full name: %q", user.FullName)
	}
	if user.IsOnboarded {
		t.Fatalf("fresh accounts must not be onboarded")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("password123")); err != nil {
		t.Fatalf("stored password is not a valid hash: %v", err)
	}
	if sessions.issued != user.ID {
		t.Fatalf("expected session for %q, issued for %q", user.ID, sessions.issued)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens in response: %+v", resp)
	}
}

func TestSignUpValidation(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"missingFullName", map[string]string{"email": "a@example.com", "password": "password123"}, http.StatusBadRequest},
		{"missingEmail", map[string]string{"fullName": "A", "password": "password123"}, http.StatusBadRequest},
		{"invalidEmail", map[string]string{"fullName": "A", "email": "not-an-email", "password": "password123"}, http.StatusBadRequest},
		{"shortPassword", map[string]string{"fullName": "A", "email": "a@example.com", "password": "short"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthHandler{Users: newMemoryUserStore(), Sessions: &stubSessionManager{}}
			rec := httptest.NewRecorder()
			handler.SignUp(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/signup", "", tc.body))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestSignUpExistingAccount(t *testing.T) {
	store := newMemoryUserStore(models.User{ID: "u1", Email: "mia@example.com"})
	handler := AuthHandler{Users: store, Sessions: &stubSessionManager{}}

	body := map[string]string{
		"fullName": "Mia Tanaka",
		"email":    "mia@example.com",
		"password": "password123",
	}

	rec := httptest.NewRecorder()
	handler.SignUp(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/signup", "", body))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	store := newMemoryUserStore(models.User{
		ID:          "u1",
		Email:       "mia@example.com",
		Password:    hashPassword(t, "password123"),
		IsOnboarded: true,
	})
	sessions := &stubSessionManager{}
	handler := AuthHandler{Users: store, Sessions: sessions}

	body := map[string]string{"email": "mia@example.com", "password": "password123"}

	rec := httptest.NewRecorder()
	handler.Login(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/login", "", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sessions.issued != "u1" {
		t.Fatalf("expected session issued for u1, got %q", sessions.issued)
	}

	var resp authResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Onboarded {
		t.Fatalf("expected onboarded flag in login response")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := newMemoryUserStore(models.User{
		ID:       "u1",
		Email:    "mia@example.com",
		Password: hashPassword(t, "password123"),
	})
	handler := AuthHandler{Users: store, Sessions: &stubSessionManager{}}

	t.Run("wrongPassword", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Login(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "mia@example.com", "password": "nope-nope"}))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unknownEmail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.Login(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "ghost@example.com", "password": "password123"}))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestAuthRateLimited(t *testing.T) {
	handler := AuthHandler{Users: newMemoryUserStore(), Sessions: &stubSessionManager{}, Limiter: denyLimiter{}}

	rec := httptest.NewRecorder()
	handler.Login(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@example.com", "password": "password123"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("login: expected 429, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.SignUp(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"fullName": "A", "email": "a@example.com", "password": "password123"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("signup: expected 429, got %d", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	sessions := &stubSessionManager{}
	handler := AuthHandler{Sessions: sessions}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": "refresh-u1"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if sessions.refreshed != "refresh-u1" {
		t.Fatalf("expected refresh with token, got %q", sessions.refreshed)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	sessions := &stubSessionManager{refreshErr: auth.ErrSessionNotFound}
	handler := AuthHandler{Sessions: sessions}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": "bogus"}))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRefreshStoreFailure(t *testing.T) {
	sessions := &stubSessionManager{refreshErr: errors.New("connection reset")}
	handler := AuthHandler{Sessions: sessions}

	rec := httptest.NewRecorder()
	handler.Refresh(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": "refresh-u1"}))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	store := newMemoryUserStore(models.User{ID: "u1", Email: "mia@example.com"})
	handler := AuthHandler{Users: store}

	// the response is identical whether or not the account exists
	for _, email := range []string{"mia@example.com", "ghost@example.com"} {
		rec := httptest.NewRecorder()
		handler.RequestPasswordReset(rec, authedRequest(t, http.MethodPost, "/api/v1/auth/password-reset", "", map[string]string{"email": email}))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s: expected 202, got %d", email, rec.Code)
		}
	}
}
