package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"ariabackend/pkg/domain"
	"ariabackend/pkg/mailer"
	"ariabackend/pkg/store"
)

var (
	ErrAccountConflict    = errors.New("email already registered")
	ErrAccountNotFound    = errors.New("account not found")
	ErrOTPNotFound        = errors.New("no verification code found")
	ErrOTPExpired         = errors.New("verification code expired")
	ErrOTPPurposeMismatch = errors.New("invalid verification purpose")
	ErrOTPInvalid         = errors.New("incorrect verification code")
	ErrEmailInvalid       = errors.New("email format is invalid")
)

const (
	defaultTTL        = 5 * time.Minute
	defaultCodeLength = 6
)

// Config wires the manager's collaborators.
type Config struct {
	Store      store.Store
	Mailer     mailer.Mailer
	TTL        time.Duration
	CodeLength int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager generates, stores, and verifies one-time passcodes. Each email owns
// a single passcode slot: requesting a new code supersedes the outstanding
// one regardless of purpose.
type Manager struct {
	store      store.Store
	mailer     mailer.Mailer
	ttl        time.Duration
	codeLength int
	now        func() time.Time
}

// IssueResult reports a completed passcode request. Degraded means a
// non-critical side effect failed (mail delivery, or storage during signup)
// but the flow continued.
type IssueResult struct {
	Code     string
	Degraded bool
	Reason   string
}

// NewManager constructs the manager with its storage and delivery collaborators.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("otp manager requires a store")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	codeLength := cfg.CodeLength
	if codeLength <= 0 {
		codeLength = defaultCodeLength
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		store:      cfg.Store,
		mailer:     cfg.Mailer,
		ttl:        ttl,
		codeLength: codeLength,
		now:        now,
	}, nil
}

// Request issues a fresh passcode for the email and purpose, overwriting any
// outstanding record for that email. Signup requests conflict with existing
// accounts; login requests require one. Mail delivery is best-effort and its
// failure degrades the result instead of aborting it.
func (m *Manager) Request(email string, purpose domain.OTPPurpose) (IssueResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return IssueResult{}, err
	}
	exists, err := m.store.HasUser(email)
	if err != nil {
		return IssueResult{}, fmt.Errorf("check account: %w", err)
	}
	switch purpose {
	case domain.PurposeSignup:
		if exists {
			return IssueResult{}, ErrAccountConflict
		}
	case domain.PurposeLogin:
		if !exists {
			return IssueResult{}, ErrAccountNotFound
		}
	default:
		return IssueResult{}, ErrOTPPurposeMismatch
	}

	code, err := generateNumericCode(m.codeLength)
	if err != nil {
		return IssueResult{}, fmt.Errorf("generate code: %w", err)
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return IssueResult{}, fmt.Errorf("hash code: %w", err)
	}

	result := IssueResult{Code: code}
	record := domain.OTPRecord{
		Email:    email,
		CodeHash: string(codeHash),
		Purpose:  purpose,
		IssuedAt: m.now(),
		Verified: false,
	}
	if err := m.store.UpsertOTP(record); err != nil {
		// A signup caller can still retry; a login caller has an account to
		// protect and the code must be retrievable, so storage is critical.
		if purpose != domain.PurposeSignup {
			return IssueResult{}, fmt.Errorf("store code: %w", err)
		}
		slog.Warn("otp storage failed, continuing degraded", "email", MaskEmail(email), "err", err)
		result.Degraded = true
		result.Reason = "verification code could not be persisted"
	}

	if m.mailer == nil {
		result.Degraded = true
		result.Reason = "mail delivery not configured"
		return result, nil
	}
	subject, body := composeMessage(code, purpose, m.ttl)
	if err := m.mailer.Send(email, subject, body); err != nil {
		slog.Warn("otp mail delivery failed", "email", MaskEmail(email), "err", err)
		result.Degraded = true
		result.Reason = "verification email could not be delivered"
	}
	return result, nil
}

// Verify checks the submitted code against the email's live record and marks
// it verified on success.
func (m *Manager) Verify(email, code string, purpose domain.OTPPurpose) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrOTPInvalid
	}
	record, ok, err := m.store.GetOTP(email)
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !ok {
		return ErrOTPNotFound
	}
	if m.now().Sub(record.IssuedAt) > m.ttl {
		return ErrOTPExpired
	}
	if record.Purpose != purpose {
		return ErrOTPPurposeMismatch
	}
	if bcrypt.CompareHashAndPassword([]byte(record.CodeHash), []byte(code)) != nil {
		return ErrOTPInvalid
	}
	if err := m.store.MarkOTPVerified(email); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

// TTL reports the configured validity window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func composeMessage(code string, purpose domain.OTPPurpose, ttl time.Duration) (string, string) {
	var subject, intro string
	if purpose == domain.PurposeSignup {
		subject = "Your OTP for Account Creation – ARIA AI"
		intro = "Thank you for signing up with ARIA AI."
	} else {
		subject = "Your OTP for Secure Access – ARIA AI"
		intro = "We've received a request to authenticate your account with ARIA AI."
	}
	body := fmt.Sprintf(`Hello,
%s
Your One-Time Password (OTP) is: %s
Please use this OTP to complete your process. For your security, this code is valid for only %d minutes and can be used once.
If you did not initiate this request, please ignore this email or contact our support team immediately.

Thank you for choosing ARIA AI!
Best regards,
The ARIA AI Team`, intro, code, int(ttl.Minutes()))
	return subject, body
}

func generateNumericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// NormalizeEmail lowercases, trims, and validates an address.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrEmailInvalid
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrEmailInvalid
	}
	return email, nil
}

// MaskEmail redacts the local part for logging.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return email
	}
	local := parts[0]
	switch len(local) {
	case 0:
		return "***@" + parts[1]
	case 1, 2:
		return local[:1] + "***@" + parts[1]
	default:
		return local[:1] + "***" + local[len(local)-1:] + "@" + parts[1]
	}
}
