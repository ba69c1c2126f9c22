package utils

import (
	"strings"

	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"
)

// Free mailbox providers that never identify a company.
var freeEmailProviders = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"icloud.com":     true,
	"me.com":         true,
	"aol.com":        true,
	"proton.me":      true,
	"protonmail.com": true,
	"gmx.com":        true,
	"mail.com":       true,
}

// CompanyLookup resolves a lead's email domain to a company name via whois.
// Everything here is best effort; lookups failing must never affect lead
// capture.
type CompanyLookup struct {
	Logger *logrus.Logger
}

func NewCompanyLookup(logger *logrus.Logger) *CompanyLookup {
	return &CompanyLookup{Logger: logger}
}

// CompanyDomainFromEmail extracts the domain when it identifies a company,
// or returns "" for free mailbox providers.
func CompanyDomainFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	domain := strings.ToLower(email[at+1:])
	if freeEmailProviders[domain] {
		return ""
	}
	return domain
}

// IdentifyCompany returns (companyName, domain) for an email address. The
// name comes from the domain's whois registrant organization when
// available; the domain alone is still useful when whois yields nothing.
func (c *CompanyLookup) IdentifyCompany(email string) (string, string) {
	domain := CompanyDomainFromEmail(email)
	if domain == "" {
		return "", ""
	}

	raw, err := whois.Whois(domain)
	if err != nil {
		if c.Logger != nil {
			c.Logger.WithFields(logrus.Fields{
				"domain": domain,
				"error":  err.Error(),
			}).Debug("whois lookup failed")
		}
		return "", domain
	}

	return parseRegistrantOrg(raw), domain
}

// parseRegistrantOrg pulls the organization line out of a raw whois
// response. Registrars redact many records; "" is a normal outcome.
func parseRegistrantOrg(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		for _, prefix := range []string{"registrant organization:", "org:", "orgname:", "organisation:", "organization:"} {
			if strings.HasPrefix(lower, prefix) {
				value := strings.TrimSpace(trimmed[len(prefix):])
				if value == "" || strings.Contains(strings.ToLower(value), "redacted") ||
					strings.Contains(strings.ToLower(value), "privacy") {
					return ""
				}
				return value
			}
		}
	}
	return ""
}
