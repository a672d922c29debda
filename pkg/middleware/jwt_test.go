package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

const testSecret = "test-secret-key-for-jwt-middleware"

func init() {
	gin.SetMode(gin.TestMode)
}

func generateTestToken(claims jwt.MapClaims, secret string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(secret))
	return tokenString
}

type fakeLookup struct {
	subjects map[string]string
	calls    int
}

func (f *fakeLookup) LookupToken(_ context.Context, token string) (string, error) {
	f.calls++
	if sub, ok := f.subjects[token]; ok {
		return sub, nil
	}
	return "", errors.New("identity: 401 invalid JWT")
}

func TestTokenAuthenticator_Authenticate(t *testing.T) {
	valid := generateTestToken(jwt.MapClaims{"sub": "user-123", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	legacy := generateTestToken(jwt.MapClaims{"user_id": "user-legacy", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	expired := generateTestToken(jwt.MapClaims{"sub": "user-123", "exp": time.Now().Add(-time.Hour).Unix()}, testSecret)
	foreign := generateTestToken(jwt.MapClaims{"sub": "user-999", "exp": time.Now().Add(time.Hour).Unix()}, "other-secret")
	noSub := generateTestToken(jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}, testSecret)

	tests := []struct {
		name        string
		token       string
		known       map[string]string
		wantSubject string
		wantLookups int
		wantErr     bool
	}{
		{name: "fast path sub claim", token: valid, wantSubject: "user-123"},
		{name: "fast path user_id claim", token: legacy, wantSubject: "user-legacy"},
		{name: "expired falls back to identity service", token: expired, known: map[string]string{expired: "user-123"}, wantSubject: "user-123", wantLookups: 1},
		{name: "foreign signature falls back", token: foreign, known: map[string]string{foreign: "user-999"}, wantSubject: "user-999", wantLookups: 1},
		{name: "no subject falls back and fails", token: noSub, wantLookups: 1, wantErr: true},
		{name: "garbage fails both paths", token: "not-a-jwt", wantLookups: 1, wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &fakeLookup{subjects: tt.known}
			auth := NewTokenAuthenticator(&JWTConfig{Secret: testSecret}, lookup, nil)

			subject, err := auth.Authenticate(context.Background(), tt.token)
			if tt.wantErr {
				if !apperror.Is(err, apperror.KindAuthentication) {
					t.Fatalf("expected authentication error, got %v", err)
				}
				if subject != "" {
					t.Errorf("subject = %q on failure, want empty", subject)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if subject != tt.wantSubject {
				t.Errorf("subject = %q, want %q", subject, tt.wantSubject)
			}
			if lookup.calls != tt.wantLookups {
				t.Errorf("identity lookups = %d, want %d", lookup.calls, tt.wantLookups)
			}
		})
	}
}

func TestTokenAuthenticator_IssuerMismatch(t *testing.T) {
	token := generateTestToken(jwt.MapClaims{"sub": "u1", "iss": "someone-else", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)
	auth := NewTokenAuthenticator(&JWTConfig{Secret: testSecret, Issuer: "identity"}, nil, nil)

	if _, err := auth.Authenticate(context.Background(), token); err == nil {
		t.Fatal("expected issuer mismatch to fail without a lookup")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"", "", ErrMissingAuthHeader},
		{"Basic abc", "", ErrInvalidAuthFormat},
		{"Bearer ", "", ErrInvalidAuthFormat},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}

func setupTestRouter(config *JWTConfig, lookup TokenLookup) *gin.Engine {
	router := gin.New()
	router.Use(BearerAuth(NewTokenAuthenticator(config, lookup, nil), config))
	router.GET("/protected", func(c *gin.Context) {
		userID, _ := GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func TestBearerAuth(t *testing.T) {
	config := &JWTConfig{Secret: testSecret, SkipPaths: []string{"/health"}}

	t.Run("valid token", func(t *testing.T) {
		router := setupTestRouter(config, nil)
		token := generateTestToken(jwt.MapClaims{"sub": "user-123", "exp": time.Now().Add(time.Hour).Unix()}, testSecret)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var body map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["user_id"] != "user-123" {
			t.Errorf("user_id = %q, want user-123", body["user_id"])
		}
	})

	t.Run("missing authorization header", func(t *testing.T) {
		router := setupTestRouter(config, nil)
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
		if w.Body.String() != `{"error":"Authorization header is required"}` {
			t.Errorf("unexpected body: %s", w.Body.String())
		}
	})

	t.Run("invalid token and failed lookup", func(t *testing.T) {
		router := setupTestRouter(config, &fakeLookup{})
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer junk")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
		}
	})

	t.Run("skip path", func(t *testing.T) {
		router := setupTestRouter(config, nil)
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})
}
