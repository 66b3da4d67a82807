package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenLifecycle(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("dashboard", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("empty token")
	}

	if err := tm.ValidateToken("dashboard", token); err != nil {
		t.Errorf("ValidateToken failed: %v", err)
	}
	if err := tm.ValidateToken("dashboard", "wrong"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
	if err := tm.ValidateToken("other", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for unknown client, got %v", err)
	}

	tm.RevokeToken("dashboard")
	if err := tm.ValidateToken("dashboard", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after revoke, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("dashboard", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	client, err := tm.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if client != "dashboard" {
		t.Errorf("client = %s, want dashboard", client)
	}

	if _, err := tm.Authenticate("bogus"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	expired, err := tm.GenerateToken("stale", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := tm.Authenticate(expired); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token should not authenticate, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	tm := NewTokenManager()

	token, err := tm.GenerateToken("dashboard", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if err := tm.ValidateToken("dashboard", token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	tm.CleanupExpiredTokens()
	if err := tm.ValidateToken("dashboard", token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after cleanup, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("disabled without key", func(t *testing.T) {
		wrapped := Middleware("", nil)(handler)
		req := httptest.NewRequest("POST", "/api/workloads", nil)
		req.RemoteAddr = "203.0.113.1:555"
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("got %d, want 200", rr.Code)
		}
	})

	t.Run("GET always allowed", func(t *testing.T) {
		wrapped := Middleware("secret", nil)(handler)
		req := httptest.NewRequest("GET", "/api/workloads", nil)
		req.RemoteAddr = "203.0.113.1:555"
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("got %d, want 200", rr.Code)
		}
	})

	t.Run("mutating request needs key", func(t *testing.T) {
		wrapped := Middleware("secret", nil)(handler)
		req := httptest.NewRequest("POST", "/api/workloads", nil)
		req.RemoteAddr = "203.0.113.1:555"
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("got %d, want 401", rr.Code)
		}

		req.Header.Set("Authorization", "Bearer secret")
		rr = httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("got %d, want 200 with key", rr.Code)
		}
	})

	t.Run("issued token accepted", func(t *testing.T) {
		tm := NewTokenManager()
		token, err := tm.GenerateToken("dashboard", time.Hour)
		if err != nil {
			t.Fatalf("GenerateToken failed: %v", err)
		}

		wrapped := Middleware("secret", tm)(handler)
		req := httptest.NewRequest("POST", "/api/workloads", nil)
		req.RemoteAddr = "203.0.113.1:555"
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("got %d, want 200 with issued token", rr.Code)
		}

		tm.RevokeToken("dashboard")
		rr = httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("got %d, want 401 after revoke", rr.Code)
		}
	})

	t.Run("loopback workers exempt", func(t *testing.T) {
		wrapped := Middleware("secret", nil)(handler)
		req := httptest.NewRequest("PATCH", "/api/workloads/1", nil)
		req.RemoteAddr = "127.0.0.1:40000"
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("got %d, want 200 for loopback", rr.Code)
		}
	})
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") {
		t.Error("equal strings should compare true")
	}
	if SecureCompare("abc", "abd") {
		t.Error("different strings should compare false")
	}
}
