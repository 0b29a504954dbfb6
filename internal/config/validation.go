package config

import (
	"fmt"
	"net/url"
)

// Validate checks every invariant spec.md §4.1 names: unknown
// discriminator, missing required field for the chosen variant, empty
// group name, empty command, non-absolute URL, and hybrid
// command/url configuration.
func Validate(cfg *Config) error {
	for name, upstream := range cfg.Servers {
		if name == "" {
			return newLoadError(KindEmptyGroupName, name, fmt.Errorf("group name must not be empty"))
		}
		if err := validateUpstream(name, upstream); err != nil {
			return err
		}
	}
	return nil
}

func validateUpstream(name string, u *UpstreamConfig) error {
	switch u.Protocol {
	case "", ProtocolStdio, ProtocolHTTP, ProtocolStreamableHTTP, ProtocolSSE:
	default:
		return newLoadError(KindUnknownProtocol, name, fmt.Errorf("unknown type %q", u.Protocol))
	}

	hasCommand := u.Command != ""
	hasURL := u.URL != ""
	if hasCommand && hasURL {
		return newLoadError(KindHybridDiscriminant, name, fmt.Errorf("exactly one of command or url may be set"))
	}

	if u.IsStdio() {
		if u.Command == "" {
			return newLoadError(KindEmptyCommand, name, fmt.Errorf("command is required for stdio servers"))
		}
		return nil
	}

	// http or sse
	if u.URL == "" {
		return newLoadError(KindMissingField, name, fmt.Errorf("url is required for %s servers", u.Protocol))
	}
	parsed, err := url.Parse(u.URL)
	if err != nil || !parsed.IsAbs() {
		return newLoadError(KindNonAbsoluteURL, name, fmt.Errorf("url %q must be absolute", u.URL))
	}
	return nil
}
