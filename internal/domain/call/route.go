package call

import (
	"strings"
	"time"
)

// RouteHeaders are the routing identifiers supplied at handshake time.
type RouteHeaders struct {
	AccountDomain string
	Dialed        string
	CallerID      string
}

// Route maps a matching rule over handshake headers to an agent. Routes are
// read-only lookups at session creation; lower Priority wins.
type Route struct {
	ID            int64     `db:"id"`
	BusinessID    int64     `db:"business_id"`
	DomainPattern string    `db:"domain_pattern"`
	DialedPattern string    `db:"dialed_pattern"`
	CallerPattern string    `db:"caller_pattern"`
	AgentID       int64     `db:"agent_id"`
	Priority      int       `db:"priority"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Matches reports whether the route's patterns all accept the headers.
// Empty patterns match anything; a single trailing "*" matches a prefix.
func (r Route) Matches(h RouteHeaders) bool {
	return matchPattern(r.DomainPattern, h.AccountDomain) &&
		matchPattern(r.DialedPattern, h.Dialed) &&
		matchPattern(r.CallerPattern, h.CallerID)
}

func matchPattern(pattern, value string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || pattern == "*" {
		return true
	}
	value = strings.ToLower(strings.TrimSpace(value))
	pattern = strings.ToLower(pattern)
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return value == pattern
}
