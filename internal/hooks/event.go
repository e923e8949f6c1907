// Package hooks defines the lifecycle hook events emitted by Claude Code.
package hooks

import "encoding/json"

// Kind identifies a lifecycle hook event type.
type Kind string

// The closed set of recognized event kinds. Anything else is tolerated
// at the boundary but produces no state change.
const (
	SessionStart       Kind = "SessionStart"
	SessionEnd         Kind = "SessionEnd"
	Stop               Kind = "Stop"
	PreToolUse         Kind = "PreToolUse"
	PostToolUse        Kind = "PostToolUse"
	PostToolUseFailure Kind = "PostToolUseFailure"
	SubagentStart      Kind = "SubagentStart"
	SubagentStop       Kind = "SubagentStop"
)

// Known reports whether k is one of the recognized event kinds.
func (k Kind) Known() bool {
	switch k {
	case SessionStart, SessionEnd, Stop,
		PreToolUse, PostToolUse, PostToolUseFailure,
		SubagentStart, SubagentStop:
		return true
	}
	return false
}

// Event is an inbound hook event payload.
//
// SessionID and Name are required; everything else depends on the kind.
// Timestamp is client-supplied and accepted but not authoritative —
// server time is used for all derived timestamps.
type Event struct {
	SessionID    string          `json:"session_id"`
	Name         Kind            `json:"hook_event_name"`
	Cwd          string          `json:"cwd,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse json.RawMessage `json:"tool_response,omitempty"`
	Error        string          `json:"error,omitempty"`
	AgentName    string          `json:"agent_name,omitempty"`
	AgentType    string          `json:"agent_type,omitempty"`
	Model        string          `json:"model,omitempty"`
	Timestamp    string          `json:"timestamp,omitempty"`
}

// Validate checks the required fields. A missing session id or event
// name is a malformed event; an unrecognized name is not (see Known).
func (e Event) Validate() error {
	if e.SessionID == "" {
		return errMissingSessionID
	}
	if e.Name == "" {
		return errMissingEventName
	}
	return nil
}

type validationError string

func (v validationError) Error() string { return string(v) }

const (
	errMissingSessionID validationError = "missing session_id"
	errMissingEventName validationError = "missing hook_event_name"
)
