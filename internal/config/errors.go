package config

import "fmt"

// ErrorKind classifies a LoadError (spec.md §7 "ConfigError").
type ErrorKind string

const (
	KindUnreadable        ErrorKind = "unreadable"
	KindMalformedJSON     ErrorKind = "malformed_json"
	KindUnknownProtocol   ErrorKind = "unknown_protocol"
	KindMissingField      ErrorKind = "missing_field"
	KindEmptyGroupName    ErrorKind = "empty_group_name"
	KindEmptyCommand      ErrorKind = "empty_command"
	KindNonAbsoluteURL    ErrorKind = "non_absolute_url"
	KindHybridDiscriminant ErrorKind = "hybrid_discriminant"
)

// LoadError wraps a config validation failure with a stable Kind so
// callers can distinguish fatal startup errors from recoverable reload
// errors without string-matching messages.
type LoadError struct {
	Kind  ErrorKind
	Group string // empty for file-level errors
	Err   error
}

func (e *LoadError) Error() string {
	if e.Group != "" {
		return fmt.Sprintf("config: group %q: %s: %v", e.Group, e.Kind, e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func newLoadError(kind ErrorKind, group string, err error) *LoadError {
	return &LoadError{Kind: kind, Group: group, Err: err}
}
