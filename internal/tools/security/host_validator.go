package security

import (
	"fmt"
	"net"
	"strings"
)

// HostValidator checks a URL hostname against a static blocklist and its
// resolved IPs against IPValidator, so a DNS name can't route around the
// IP-level SSRF guard.
type HostValidator struct {
	blocked map[string]bool
	ips     *IPValidator
}

// NewHostValidator builds a HostValidator with the default blocklist.
func NewHostValidator() *HostValidator {
	blocked := []string{
		"localhost", "127.0.0.1", "::1", "0.0.0.0", "::",
		"::ffff:127.0.0.1", "[::1]", "[::ffff:127.0.0.1]",
	}
	m := make(map[string]bool, len(blocked))
	for _, h := range blocked {
		m[h] = true
	}
	return &HostValidator{blocked: m, ips: NewIPValidator()}
}

// Validate rejects hostname if it's a blocked literal or resolves to a
// blocked IP. A DNS lookup failure is not itself an error here — the HTTP
// client's own dial will fail and report that separately.
func (v *HostValidator) Validate(hostname string) error {
	if hostname == "" {
		return fmt.Errorf("hostname is required")
	}
	normalized := strings.ToLower(strings.TrimSpace(hostname))
	if v.blocked[normalized] {
		return fmt.Errorf("hostname %q blocked: loopback/unspecified", hostname)
	}

	ips, err := net.LookupIP(hostname)
	if err != nil {
		return nil
	}
	return v.ips.ValidateAll(ips)
}
