package utils

import (
	"net/mail"
	"strings"
)

// NormalizeEmail is the form used to compare target addresses across groups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomainFromEmail accepts bare addresses and "Name <addr>" forms. It
// returns "" when there is no single @.
func ExtractDomainFromEmail(email string) string {
	address := strings.TrimSpace(email)
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return ""
	}
	return NormalizeEmail(domain)
}
