package utils

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", "rag-hub")

	token, err := m.GenerateToken("u-1", ScopeWrite, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := m.ParseToken(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != "u-1" {
		t.Fatalf("expected user u-1, got %q", claims.UserID)
	}
	if !claims.CanWrite() {
		t.Fatalf("expected write scope")
	}
}

func TestJWTManager_Expired(t *testing.T) {
	m := NewJWTManager("secret", "rag-hub")

	token, err := m.GenerateToken("u-1", ScopeRead, -time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.ParseToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTManager_WrongSecret(t *testing.T) {
	token, err := NewJWTManager("a", "rag-hub").GenerateToken("u-1", ScopeRead, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewJWTManager("b", "rag-hub").ParseToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
