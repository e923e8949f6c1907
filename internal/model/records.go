// Package model defines the domain records persisted by the monitor
// and the response shapes served to the dashboard.
package model

import "time"

// Session status values.
const (
	SessionActive = "active"
	SessionEnded  = "ended"
)

// Tool call status values.
const (
	ToolPending = "pending"
	ToolSuccess = "success"
	ToolError   = "error"
)

// Agent status values.
const (
	AgentActive  = "active"
	AgentStopped = "stopped"
)

// Project identifies a working directory. Created lazily the first
// time an event references a path not yet seen; never updated or
// deleted.
type Project struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	CreatedAt    time.Time `json:"created_at"`
	SessionCount int       `json:"session_count"`
}

// Session is one continuous interaction, identified by an opaque
// externally-assigned token. Token counters are full-replace only —
// transcript reconciliation recomputes them from scratch each pass.
type Session struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	ProjectID        *int64     `json:"project_id,omitempty"`
	ProjectName      string     `json:"project_name,omitempty"`
	Status           string     `json:"status"`
	Model            string     `json:"model,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	LastEventAt      *time.Time `json:"last_event_at,omitempty"`
	InputTokens      int64      `json:"input_tokens"`
	OutputTokens     int64      `json:"output_tokens"`
	CacheReadTokens  int64      `json:"cache_read_tokens"`
	CacheWriteTokens int64      `json:"cache_write_tokens"`
	EstimatedCost    float64    `json:"estimated_cost"`
	ToolCallCount    int        `json:"tool_call_count"`
	DurationSeconds  *float64   `json:"duration_seconds,omitempty"`
}

// ToolCall is one invocation of a named tool within a session.
// A pending call has no end time and no duration; a closed call has an
// end time, and a duration unless it was synthesized without a known
// start.
type ToolCall struct {
	ID           int64      `json:"id"`
	SessionID    string     `json:"session_id"`
	ToolName     string     `json:"tool_name"`
	ToolInput    string     `json:"tool_input,omitempty"`
	ToolResponse string     `json:"tool_response,omitempty"`
	Status       string     `json:"status"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
}

// Agent is a delegated sub-task spawned within a session, optionally
// back-referencing the Task tool call that spawned it.
type Agent struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"session_id"`
	AgentName      string     `json:"agent_name,omitempty"`
	AgentType      string     `json:"agent_type,omitempty"`
	TaskToolCallID *int64     `json:"task_tool_call_id,omitempty"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// SessionDetail is a session with its tool calls and agents attached.
type SessionDetail struct {
	Session
	ToolCalls []ToolCall `json:"tool_calls"`
	Agents    []Agent    `json:"agents"`
}

// TimelineEvent is one entry in a session's chronological timeline,
// either a tool call or an agent spawn.
type TimelineEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	Agent     *Agent    `json:"agent,omitempty"`
}

// SessionPage is one page of a session listing.
type SessionPage struct {
	Items    []Session `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// ToolStats aggregates usage for one tool name.
type ToolStats struct {
	ToolName      string   `json:"tool_name"`
	Count         int      `json:"count"`
	ErrorCount    int      `json:"error_count"`
	ErrorRate     float64  `json:"error_rate"`
	AvgDurationMs *float64 `json:"avg_duration_ms,omitempty"`
}

// SessionsOverTime is a per-day session count.
type SessionsOverTime struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TokensOverTime is a per-day token total.
type TokensOverTime struct {
	Date      string `json:"date"`
	TokensIn  int64  `json:"tokens_in"`
	TokensOut int64  `json:"tokens_out"`
}

// DashboardStats is the aggregate view served to the dashboard.
type DashboardStats struct {
	TotalSessions     int                `json:"total_sessions"`
	ActiveSessions    int                `json:"active_sessions"`
	TotalToolCalls    int                `json:"total_tool_calls"`
	TotalInputTokens  int64              `json:"total_input_tokens"`
	TotalOutputTokens int64              `json:"total_output_tokens"`
	TotalCost         float64            `json:"total_cost"`
	ToolDistribution  []ToolStats        `json:"tool_distribution"`
	RecentSessions    []Session          `json:"recent_sessions"`
	SessionsOverTime  []SessionsOverTime `json:"sessions_over_time"`
	TokensOverTime    []TokensOverTime   `json:"tokens_over_time"`
	RecentErrors      []ToolCall         `json:"recent_errors"`
}
