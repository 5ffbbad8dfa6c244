package store

import "ariabackend/pkg/domain"

// Store defines persistence operations for tenant accounts, passcodes, and
// conversation history.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUser(email string) (bool, error)
	GetUser(email string) (domain.User, bool, error)

	// AddDomain inserts a domain into the tenant's allow-list. It reports
	// false without error when the domain was already present.
	AddDomain(email, dom string) (bool, error)
	// SetFilterWords replaces the tenant's filter words when rewrite is true,
	// otherwise merges them in without duplicates.
	SetFilterWords(email string, words []string, rewrite bool) error
	GetFilterWords(email string) ([]string, error)
	// RecordToken stores the latest issued bearer token on the account record.
	// Earlier tokens stay valid by signature; this is a side-channel copy.
	RecordToken(email, token string) error

	// otp: one live record per email, a new upsert supersedes the old one
	UpsertOTP(domain.OTPRecord) error
	GetOTP(email string) (domain.OTPRecord, bool, error)
	MarkOTPVerified(email string) error
	DeleteOTP(email string) error

	// conversations
	AppendConversation(userID string, entry domain.ConversationEntry) error
	ListConversation(userID string, limit int) ([]domain.ConversationEntry, error)
}
