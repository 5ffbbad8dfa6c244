package store

import (
	"testing"
	"time"

	"ariabackend/pkg/domain"
)

func TestMemoryStoreAddDomainIdempotent(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveUser(domain.User{Email: "org@corp.com"}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	added, err := s.AddDomain("org@corp.com", "corp.com")
	if err != nil {
		t.Fatalf("add domain: %v", err)
	}
	if !added {
		t.Fatalf("expected first insert to add")
	}
	added, err = s.AddDomain("org@corp.com", "corp.com")
	if err != nil {
		t.Fatalf("second add domain: %v", err)
	}
	if added {
		t.Fatalf("expected duplicate insert to be a no-op")
	}
	user, _, err := s.GetUser("org@corp.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if len(user.Domains) != 1 || user.Domains[0] != "corp.com" {
		t.Fatalf("expected exactly one corp.com entry, got %v", user.Domains)
	}
}

func TestMemoryStoreAddDomainUnknownUser(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.AddDomain("ghost@corp.com", "corp.com"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestMemoryStoreOTPSlotSupersedes(t *testing.T) {
	s := NewMemoryStore()
	first := domain.OTPRecord{Email: "u@corp.com", CodeHash: "h1", Purpose: domain.PurposeSignup, IssuedAt: time.Now()}
	if err := s.UpsertOTP(first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := domain.OTPRecord{Email: "u@corp.com", CodeHash: "h2", Purpose: domain.PurposeLogin, IssuedAt: time.Now()}
	if err := s.UpsertOTP(second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	rec, ok, err := s.GetOTP("u@corp.com")
	if err != nil || !ok {
		t.Fatalf("get otp: ok=%v err=%v", ok, err)
	}
	if rec.CodeHash != "h2" || rec.Purpose != domain.PurposeLogin {
		t.Fatalf("expected latest record to win, got %+v", rec)
	}
}

func TestMemoryStoreSetFilterWordsMergeAndRewrite(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveUser(domain.User{Email: "org@corp.com", FilterWords: []string{"alpha"}}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := s.SetFilterWords("org@corp.com", []string{"alpha", "beta"}, false); err != nil {
		t.Fatalf("merge words: %v", err)
	}
	words, err := s.GetFilterWords("org@corp.com")
	if err != nil {
		t.Fatalf("get words: %v", err)
	}
	if len(words) != 2 {
		t.Fatalf("expected deduplicated merge, got %v", words)
	}
	if err := s.SetFilterWords("org@corp.com", []string{"gamma"}, true); err != nil {
		t.Fatalf("rewrite words: %v", err)
	}
	words, err = s.GetFilterWords("org@corp.com")
	if err != nil {
		t.Fatalf("get words: %v", err)
	}
	if len(words) != 1 || words[0] != "gamma" {
		t.Fatalf("expected rewrite to replace, got %v", words)
	}
}

func TestMemoryStoreConversationAppendOnly(t *testing.T) {
	s := NewMemoryStore()
	for _, q := range []string{"first", "second"} {
		if err := s.AppendConversation("user1", domain.ConversationEntry{Query: q, Response: "ok"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	entries, err := s.ListConversation("user1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 || entries[0].Query != "first" || entries[1].Query != "second" {
		t.Fatalf("expected ordered entries, got %+v", entries)
	}
	if entries[0].ID == "" {
		t.Fatalf("expected generated entry id")
	}
}
