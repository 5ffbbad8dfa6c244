package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndAuthenticate(t *testing.T) {
	issuer, err := NewIssuer("test-secret", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue("user@corp.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := issuer.Authenticate(tok)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject != "user@corp.com" {
		t.Fatalf("unexpected subject: %q", subject)
	}
}

func TestAuthenticateRejectsExpired(t *testing.T) {
	issuer, err := NewIssuer("test-secret", Options{Leeway: time.Millisecond})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue("user@corp.com", -time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Authenticate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got: %v", err)
	}
}

func TestAuthenticateRejectsWrongSecret(t *testing.T) {
	a, err := NewIssuer("secret-a", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	b, err := NewIssuer("secret-b", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := a.Issue("user@corp.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Authenticate(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got: %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("  ", Options{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestIssueDefaultsTTL(t *testing.T) {
	issuer, err := NewIssuer("test-secret", Options{})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	tok, err := issuer.Issue("user@corp.com", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Authenticate(tok); err != nil {
		t.Fatalf("expected default-ttl token to validate, got: %v", err)
	}
}
