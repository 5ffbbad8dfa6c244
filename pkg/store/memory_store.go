package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ariabackend/pkg/domain"
)

// MemoryStore keeps accounts, passcodes, and conversations in-process.
// It backs tests and local development without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
	otps  map[string]domain.OTPRecord
	chats map[string][]domain.ConversationEntry
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]domain.User),
		otps:  make(map[string]domain.OTPRecord),
		chats: make(map[string][]domain.ConversationEntry),
	}
}

func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.Email] = u
	return nil
}

func (m *MemoryStore) HasUser(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[email]
	return ok, nil
}

func (m *MemoryStore) GetUser(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[email]
	return user, ok, nil
}

func (m *MemoryStore) AddDomain(email, dom string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return false, ErrNotFound
	}
	for _, existing := range user.Domains {
		if existing == dom {
			return false, nil
		}
	}
	user.Domains = append(user.Domains, dom)
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return true, nil
}

func (m *MemoryStore) SetFilterWords(email string, words []string, rewrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	if rewrite {
		user.FilterWords = append([]string(nil), words...)
	} else {
		user.FilterWords = mergeStrings(user.FilterWords, words)
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return nil
}

func (m *MemoryStore) GetFilterWords(email string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]string(nil), user.FilterWords...), nil
}

func (m *MemoryStore) RecordToken(email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	user.APIToken = token
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return nil
}

func (m *MemoryStore) UpsertOTP(rec domain.OTPRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.otps[rec.Email] = rec
	return nil
}

func (m *MemoryStore) GetOTP(email string) (domain.OTPRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.otps[email]
	return rec, ok, nil
}

func (m *MemoryStore) MarkOTPVerified(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.otps[email]
	if !ok {
		return ErrNotFound
	}
	rec.Verified = true
	m.otps[email] = rec
	return nil
}

func (m *MemoryStore) DeleteOTP(email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.otps, email)
	return nil
}

func (m *MemoryStore) AppendConversation(userID string, entry domain.ConversationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UserID = userID
	m.chats[userID] = append(m.chats[userID], entry)
	return nil
}

func (m *MemoryStore) ListConversation(userID string, limit int) ([]domain.ConversationEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.chats[userID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]domain.ConversationEntry(nil), entries...), nil
}
