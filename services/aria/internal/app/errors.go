package app

import "errors"

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// This message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("Incorrect email address or password")

	// ErrAccountDisabled is returned for disabled accounts. Handlers should
	// not expose this to clients to avoid account enumeration.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrUnknownSubject means a cryptographically valid token names an
	// account that no longer exists.
	ErrUnknownSubject = errors.New("token subject not found")

	// ErrTenantNotFound means the named organization has no account.
	ErrTenantNotFound = errors.New("organization not found")

	// ErrDomainNotAllowed means the requester's email domain is not on the
	// organization's allow-list.
	ErrDomainNotAllowed = errors.New("email domain is not authorized for this organization")

	// ErrOTPNotVerified gates account creation on a completed verification.
	ErrOTPNotVerified = errors.New("email is not verified")

	ErrEmailRequired    = errors.New("email required")
	ErrQueryRequired    = errors.New("query required")
	ErrFilesRequired    = errors.New("files required")
	ErrBadDatabaseName  = errors.New("db_name must be ORG or EMP")
	ErrGenerationFailed = errors.New("answer generation failed")
)
