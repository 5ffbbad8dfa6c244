package app

import (
	"fmt"
	"log/slog"
	"time"

	"ariabackend/pkg/auth"
	"ariabackend/pkg/domain"
	"ariabackend/pkg/otp"
)

// RequestSignupOTP issues a signup passcode for a not-yet-registered email.
func (a *App) RequestSignupOTP(email string) (otp.IssueResult, error) {
	return a.otps.Request(email, domain.PurposeSignup)
}

// VerifySignupOTP checks a signup passcode and marks the record verified,
// which unlocks account creation for that email.
func (a *App) VerifySignupOTP(email, code string) error {
	return a.otps.Verify(email, code, domain.PurposeSignup)
}

// RequestLoginOTP issues a login passcode for an existing account.
func (a *App) RequestLoginOTP(email string) (otp.IssueResult, error) {
	return a.otps.Request(email, domain.PurposeLogin)
}

// Signup creates the account once its email holds a verified signup
// passcode, consumes that passcode, and issues a bearer token.
func (a *App) Signup(email, password, username string) (domain.User, string, error) {
	email, err := otp.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidateUsername(username); err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}

	// Existing accounts conflict before any verification check, so a
	// repeated create reports Conflict even after its passcode was consumed.
	exists, err := a.store.HasUser(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check account: %w", err)
	}
	if exists {
		return domain.User{}, "", otp.ErrAccountConflict
	}

	record, ok, err := a.store.GetOTP(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load verification record: %w", err)
	}
	if !ok || !record.Verified {
		return domain.User{}, "", ErrOTPNotVerified
	}
	if record.Purpose != domain.PurposeSignup {
		return domain.User{}, "", otp.ErrOTPPurposeMismatch
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("create account: %w", err)
	}
	if err := a.store.DeleteOTP(email); err != nil {
		slog.Warn("failed to consume verification record", "email", otp.MaskEmail(email), "err", err)
	}
	tok, err := a.issueAndRecord(email)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, tok, nil
}

// LoginWithOTP exchanges a valid login passcode for a bearer token.
func (a *App) LoginWithOTP(email, code string) (domain.User, string, error) {
	if err := a.otps.Verify(email, code, domain.PurposeLogin); err != nil {
		return domain.User{}, "", err
	}
	email, err := otp.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, "", err
	}
	user, ok, err := a.store.GetUser(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load account: %w", err)
	}
	if !ok {
		return domain.User{}, "", otp.ErrAccountNotFound
	}
	if user.Disabled {
		return domain.User{}, "", ErrAccountDisabled
	}
	if err := a.store.DeleteOTP(email); err != nil {
		slog.Warn("failed to consume verification record", "email", otp.MaskEmail(email), "err", err)
	}
	tok, err := a.issueAndRecord(email)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, tok, nil
}

// Login exchanges email and password for a bearer token. Failures never
// reveal whether the email is registered.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email, err := otp.NormalizeEmail(email)
	if err != nil {
		return domain.User{}, "", ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUser(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load account: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if user.Disabled {
		return domain.User{}, "", ErrAccountDisabled
	}
	tok, err := a.issueAndRecord(email)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, tok, nil
}

// Authenticate resolves a bearer token to its account.
func (a *App) Authenticate(tokenString string) (domain.User, error) {
	subject, err := a.issuer.Authenticate(tokenString)
	if err != nil {
		return domain.User{}, err
	}
	user, ok, err := a.store.GetUser(subject)
	if err != nil {
		return domain.User{}, fmt.Errorf("load account: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnknownSubject
	}
	if user.Disabled {
		return domain.User{}, ErrAccountDisabled
	}
	return user, nil
}

// issueAndRecord signs a token and keeps a best-effort copy on the account
// record. Recording failure does not invalidate the token.
func (a *App) issueAndRecord(email string) (string, error) {
	tok, err := a.issuer.Issue(email, a.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if err := a.store.RecordToken(email, tok); err != nil {
		slog.Warn("failed to record issued token", "email", otp.MaskEmail(email), "err", err)
	}
	return tok, nil
}
