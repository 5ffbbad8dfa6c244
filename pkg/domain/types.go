package domain

import "time"

type OTPPurpose string

const (
	PurposeSignup OTPPurpose = "signup"
	PurposeLogin  OTPPurpose = "login"
)

// User is a tenant account keyed by email. Domains is the allow-list of
// email-domain suffixes permitted to query this tenant's data; an empty list
// means the tenant is open to every requester.
type User struct {
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Disabled     bool      `json:"disabled"`
	Domains      []string  `json:"domains"`
	FilterWords  []string  `json:"filterWords"`
	APIToken     string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OTPRecord is the single live passcode slot for an email. A new request
// overwrites the previous record regardless of purpose, so only the most
// recent code is ever valid.
type OTPRecord struct {
	Email    string     `json:"email"`
	CodeHash string     `json:"-"`
	Purpose  OTPPurpose `json:"purpose"`
	IssuedAt time.Time  `json:"issuedAt"`
	Verified bool       `json:"verified"`
}

// ConversationEntry is one query/response pair in a user's append-only
// conversation history.
type ConversationEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document is a unit of ingested source text.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Chunk is a retrievable slice of an ingested document.
type Chunk struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}
