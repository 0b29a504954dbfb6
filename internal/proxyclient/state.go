// Package proxyclient owns the group table: one GroupState per
// configured upstream, connection orchestration, retry policy, and
// the forwarding surface the Server consumes (spec.md §4.3).
package proxyclient

import (
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"
	"github.com/smart-mcp-proxy/mcpproxy-go/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
)

// GroupState is a three-variant sum type (spec.md §3): exactly one of
// Connected, Failed, or Quarantined is non-nil. A group is never
// observed in more than one state simultaneously by any reader, since
// the table always holds one *GroupState and readers only ever see a
// fully constructed value.
type GroupState struct {
	Connected   *ConnectedState
	Failed      *FailedState
	Quarantined *QuarantinedState
}

// ConnectedState holds the live transport and the last tools/list
// result for one group. Tools is never mutated after construction;
// re-enumeration produces a new ConnectedState.
type ConnectedState struct {
	Transport       transport.Transport
	Tools           []mcp.Tool
	EnabledFeatures config.Features
}

// FailedState is the diagnostic record surfaced to the LLM through
// get_dynamic_tools when a group could not be connected.
type FailedState struct {
	LastError   string
	Attempts    int
	NextRetryAt time.Time
}

// QuarantinedState marks a group whose config set quarantined: true.
// Quarantine is a deliberate operator decision, not a connection
// failure, so it is never retried (internal/proxyclient/client.go
// skips quarantined groups in both connectOne and RetryFailed) and is
// reported under its own status rather than "failed" (spec.md §3).
type QuarantinedState struct{}

// Status is the string the downstream meta-tool reports for a group.
func (g *GroupState) Status() string {
	switch {
	case g.Connected != nil:
		return "connected"
	case g.Quarantined != nil:
		return "quarantined"
	default:
		return "failed"
	}
}

func connected(t transport.Transport, tools []mcp.Tool, features config.Features) *GroupState {
	return &GroupState{Connected: &ConnectedState{Transport: t, Tools: tools, EnabledFeatures: features}}
}

func failed(attempts int, lastErr string, nextRetryAt time.Time) *GroupState {
	return &GroupState{Failed: &FailedState{LastError: lastErr, Attempts: attempts, NextRetryAt: nextRetryAt}}
}

func quarantined() *GroupState {
	return &GroupState{Quarantined: &QuarantinedState{}}
}
