package resolver

import "strings"

// provider maps a domain substring to the IMAP host serving it.
type provider struct {
	match []string
	host  string
}

var providers = []provider{
	{match: []string{"gmail"}, host: "imap.gmail.com"},
	{match: []string{"yahoo"}, host: "imap.mail.yahoo.com"},
	{match: []string{"outlook", "hotmail", "live"}, host: "outlook.office365.com"},
	{match: []string{"icloud"}, host: "imap.mail.me.com"},
}

// Resolver maps email addresses to IMAP hostnames. Overrides are keyed by
// exact lower-cased domain and win over the built-in provider table.
type Resolver struct {
	overrides map[string]string
}

// New creates a Resolver with optional per-domain overrides.
func New(overrides map[string]string) *Resolver {
	o := make(map[string]string, len(overrides))
	for domain, host := range overrides {
		o[strings.ToLower(strings.TrimSpace(domain))] = host
	}
	return &Resolver{overrides: o}
}

// Resolve returns the IMAP host for address.
func (r *Resolver) Resolve(address string) string {
	domain := Domain(address)
	if host, ok := r.overrides[domain]; ok && host != "" {
		return host
	}
	return lookup(domain)
}

// Resolve returns the IMAP host for address using only the built-in table.
func Resolve(address string) string {
	return lookup(Domain(address))
}

// Domain returns the lower-cased part of address after the first '@'.
// An address without '@' is returned trimmed and lower-cased.
func Domain(address string) string {
	address = strings.TrimSpace(address)
	if _, after, ok := strings.Cut(address, "@"); ok {
		return strings.ToLower(after)
	}
	return strings.ToLower(address)
}

func lookup(domain string) string {
	for _, p := range providers {
		for _, m := range p.match {
			if strings.Contains(domain, m) {
				return p.host
			}
		}
	}
	return "imap." + domain
}
