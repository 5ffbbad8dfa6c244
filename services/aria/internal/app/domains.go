package app

import (
	"fmt"
	"strings"

	"ariabackend/pkg/auth"
	"ariabackend/pkg/otp"
)

// IsDomainAuthorized reports whether the requester's email domain may
// query the organization's data. An empty allow-list leaves the
// organization open to every requester; operators who want a closed
// tenant must add at least one domain.
func (a *App) IsDomainAuthorized(requestEmail, orgEmail string) (bool, error) {
	orgEmail, err := otp.NormalizeEmail(orgEmail)
	if err != nil {
		return false, err
	}
	user, ok, err := a.store.GetUser(orgEmail)
	if err != nil {
		return false, fmt.Errorf("load organization: %w", err)
	}
	if !ok {
		return false, ErrTenantNotFound
	}
	if len(user.Domains) == 0 {
		return true, nil
	}
	suffix := emailDomain(requestEmail)
	if suffix == "" {
		return false, nil
	}
	for _, dom := range user.Domains {
		if strings.EqualFold(dom, suffix) {
			return true, nil
		}
	}
	return false, nil
}

// AddDomain inserts a domain into the organization's allow-list. It
// reports false when the domain was already present so callers can give
// a distinct message.
func (a *App) AddDomain(orgEmail, dom string) (bool, error) {
	orgEmail, err := otp.NormalizeEmail(orgEmail)
	if err != nil {
		return false, err
	}
	dom = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(dom, "@")))
	if dom == "" || strings.ContainsAny(dom, "@ ") {
		return false, auth.PolicyError(fmt.Sprintf("invalid domain %q", dom))
	}
	added, err := a.store.AddDomain(orgEmail, dom)
	if err != nil {
		return false, fmt.Errorf("add domain: %w", err)
	}
	return added, nil
}

// GetFilterWords returns the organization's configured filter words.
func (a *App) GetFilterWords(orgEmail string) ([]string, error) {
	orgEmail, err := otp.NormalizeEmail(orgEmail)
	if err != nil {
		return nil, err
	}
	words, err := a.store.GetFilterWords(orgEmail)
	if err != nil {
		return nil, err
	}
	return words, nil
}

func emailDomain(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}
