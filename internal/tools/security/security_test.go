package security

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIPValidator_RejectsReservedRanges(t *testing.T) {
	v := NewIPValidator()
	cases := map[string]string{
		"127.0.0.1": "loopback",
		"10.0.0.5":  "private",
		"169.254.0.1": "link-local",
		"224.0.0.1": "multicast",
		"0.0.0.0":   "unspecified",
	}
	for ip, reason := range cases {
		err := v.Validate(net.ParseIP(ip))
		assert.Errorf(t, err, "expected %s (%s) to be rejected", ip, reason)
	}
	assert.NoError(t, v.Validate(net.ParseIP("93.184.216.34")))
}

func TestIPValidator_ValidateAllFailsOnEmptySet(t *testing.T) {
	v := NewIPValidator()
	assert.Error(t, v.ValidateAll(nil))
}

func TestHostValidator_RejectsBlockedLiterals(t *testing.T) {
	v := NewHostValidator()
	assert.Error(t, v.Validate("localhost"))
	assert.Error(t, v.Validate("127.0.0.1"))
	assert.Error(t, v.Validate(""))
}

func TestHostValidator_RejectsResolvedPrivateIP(t *testing.T) {
	v := NewHostValidator()
	// a private-range IP passed as a "hostname" is not on the literal
	// blocklist; net.LookupIP returns it as-is and the IP-level guard must
	// reject it.
	assert.Error(t, v.Validate("10.0.0.5"))
}

func TestProtocolValidator_AllowsOnlyHTTPAndHTTPS(t *testing.T) {
	v := NewProtocolValidator()
	assert.NoError(t, v.Validate("http"))
	assert.NoError(t, v.Validate("HTTPS"))
	assert.Error(t, v.Validate("file"))
	assert.Error(t, v.Validate("ftp"))
	assert.Error(t, v.Validate(""))
}

func TestPathValidator_BlocksTraversalAndSystemPaths(t *testing.T) {
	v := NewPathValidator()
	assert.NoError(t, v.Validate(""))
	assert.NoError(t, v.Validate("/v1/widgets"))
	assert.Error(t, v.Validate("/etc/passwd"))
	assert.Error(t, v.Validate("../../../etc/shadow"))
	assert.Error(t, v.Validate("%2e%2e%2fetc%2fpasswd"))
}

func TestURLValidator_RejectsSSRFAttempts(t *testing.T) {
	v := NewURLValidator()
	assert.NoError(t, v.Validate("https://example.com/widgets?id=1"))
	assert.Error(t, v.Validate("http://127.0.0.1:8080/admin"))
	assert.Error(t, v.Validate("file:///etc/passwd"))
	assert.Error(t, v.Validate("https://example.com/../../etc/passwd"))
	assert.Error(t, v.Validate("https://example.com/search?q=%2e%2e%2fetc%2fpasswd"))
	assert.Error(t, v.Validate("://not a url"))
}
