package security

import (
	"fmt"
	"net/url"
)

// URLValidator runs every guard (protocol, host/SSRF, path, query) a node's
// http tool call must pass before the engine is allowed to dial it.
type URLValidator struct {
	protocol *ProtocolValidator
	host     *HostValidator
	path     *PathValidator
}

// NewURLValidator builds a URLValidator wired with the default guards.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		protocol: NewProtocolValidator(),
		host:     NewHostValidator(),
		path:     NewPathValidator(),
	}
}

// Validate parses rawURL and runs it through every guard in turn, returning
// the first failure.
func (v *URLValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if err := v.protocol.Validate(parsed.Scheme); err != nil {
		return err
	}
	if err := v.host.Validate(parsed.Hostname()); err != nil {
		return err
	}
	if err := v.path.Validate(parsed.Path); err != nil {
		return err
	}
	return v.validateQuery(parsed.Query())
}

func (v *URLValidator) validateQuery(params url.Values) error {
	for key, values := range params {
		for _, value := range values {
			if err := v.path.Validate(value); err != nil {
				return fmt.Errorf("query parameter %q: %w", key, err)
			}
		}
	}
	return nil
}
