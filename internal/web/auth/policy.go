package auth

import (
	"strings"

	"github.com/showroom-auto/showroom/internal/domain"
)

// AdminPolicy decides which accounts may use the back office. An account is an
// admin when its e-mail domain is listed; with no domains listed, every
// authenticated account is an admin.
type AdminPolicy struct {
	Domains []string
}

// NewAdminPolicy normalizes the domain list ("@Example.com" -> "example.com")
func NewAdminPolicy(domains []string) AdminPolicy {
	p := AdminPolicy{}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d != "" {
			p.Domains = append(p.Domains, d)
		}
	}
	return p
}

// IsAdmin reports whether email belongs to an admin
func (p AdminPolicy) IsAdmin(email string) bool {
	if len(p.Domains) == 0 {
		return true
	}
	host := domain.EmailDomain(email)
	if host == "" {
		return false
	}
	for _, d := range p.Domains {
		if d == host {
			return true
		}
	}
	return false
}
