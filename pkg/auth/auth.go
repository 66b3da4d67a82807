package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenManager issues and validates API tokens for dashboard clients.
// Tokens are stored hashed; the plaintext is only returned once at issue
// time.
type TokenManager struct {
	tokens map[string]*TokenInfo
	mu     sync.RWMutex
}

// TokenInfo contains token metadata
type TokenInfo struct {
	Hash      string
	Client    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewTokenManager creates a new token manager
func NewTokenManager() *TokenManager {
	return &TokenManager{
		tokens: make(map[string]*TokenInfo),
	}
}

// GenerateToken issues a token for a client
func (tm *TokenManager) GenerateToken(client string, duration time.Duration) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.tokens[client] = &TokenInfo{
		Hash:      string(hash),
		Client:    client,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(duration),
	}
	return token, nil
}

// ValidateToken checks a client's token
func (tm *TokenManager) ValidateToken(client, token string) error {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	info, ok := tm.tokens[client]
	if !ok {
		return ErrInvalidToken
	}
	if time.Now().After(info.ExpiresAt) {
		return ErrTokenExpired
	}
	if err := bcrypt.CompareHashAndPassword([]byte(info.Hash), []byte(token)); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// Authenticate resolves a bearer token to the client it was issued to.
// Expired tokens are dropped on the way.
func (tm *TokenManager) Authenticate(token string) (string, error) {
	tm.CleanupExpiredTokens()

	tm.mu.RLock()
	defer tm.mu.RUnlock()
	for client, info := range tm.tokens {
		if bcrypt.CompareHashAndPassword([]byte(info.Hash), []byte(token)) == nil {
			return client, nil
		}
	}
	return "", ErrInvalidToken
}

// RevokeToken revokes a client's token
func (tm *TokenManager) RevokeToken(client string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	delete(tm.tokens, client)
}

// CleanupExpiredTokens removes expired tokens
func (tm *TokenManager) CleanupExpiredTokens() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	now := time.Now()
	for client, info := range tm.tokens {
		if now.After(info.ExpiresAt) {
			delete(tm.tokens, client)
		}
	}
}

// SecureCompare performs constant-time comparison
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Middleware enforces authentication on mutating routes when an API key is
// configured: the bearer value must be the key itself or a token issued by
// the manager. An empty key disables authentication, which is the default
// for a single-host dashboard. Loopback clients are exempt so local workers
// can report their status.
func Middleware(apiKey string, tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodGet || isLoopback(r.RemoteAddr) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if SecureCompare(token, apiKey) {
				next.ServeHTTP(w, r)
				return
			}
			if tokens != nil {
				if _, err := tokens.Authenticate(token); err == nil {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
