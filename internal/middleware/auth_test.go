package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kpiflow/kpiflow/internal/auth"
)

type fakeValidator struct {
	claims *auth.SessionClaims
	err    error
}

func (f *fakeValidator) Validate(ctx context.Context, token string) (*auth.SessionClaims, error) {
	return f.claims, f.err
}

func validClaims(userID, workspaceID string) *auth.SessionClaims {
	return &auth.SessionClaims{
		Email:       "user@example.com",
		Name:        "User One",
		WorkspaceID: workspaceID,
		Role:        "ADMIN",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: userID,
		},
	}
}

func performAuth(validator TokenValidator, authHeader string) (*httptest.ResponseRecorder, *gin.Context) {
	w := httptest.NewRecorder()
	router := gin.New()

	var captured *gin.Context
	router.GET("/protected", AuthMiddleware(validator), func(c *gin.Context) {
		captured = c.Copy()
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	router.ServeHTTP(w, req)
	return w, captured
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	w, _ := performAuth(&fakeValidator{}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	body := decodeError(t, w)
	if body["error"] != "SESSION_EXPIRED" {
		t.Errorf("expected SESSION_EXPIRED, got %v", body["error"])
	}
	if body["message"] != "Your session has expired. Please sign in again." {
		t.Errorf("unexpected message: %v", body["message"])
	}
	if body["retryable"] != false {
		t.Error("session errors are not retryable")
	}
}

func TestAuthMiddleware_NonBearerScheme(t *testing.T) {
	w, _ := performAuth(&fakeValidator{}, "Basic dXNlcjpwYXNz")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	w, _ := performAuth(&fakeValidator{err: errors.New("token is expired")}, "Bearer bad-token")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	body := decodeError(t, w)
	// The response must not reveal why validation failed.
	if body["message"] != "Your session has expired. Please sign in again." {
		t.Errorf("unexpected message: %v", body["message"])
	}
}

func TestAuthMiddleware_ValidTokenPopulatesContext(t *testing.T) {
	validator := &fakeValidator{claims: validClaims("user-1", "ws-1")}
	w, captured := performAuth(validator, "Bearer good-token")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if captured.GetString(ContextUserID) != "user-1" {
		t.Errorf("expected user id in context, got %s", captured.GetString(ContextUserID))
	}
	if captured.GetString(ContextEmail) != "user@example.com" {
		t.Errorf("expected email in context, got %s", captured.GetString(ContextEmail))
	}
}
