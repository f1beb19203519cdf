package call

import (
	"encoding/json"
	"time"
)

// Session identifies one active call. It is owned exclusively by its
// orchestrator; subordinate components receive it as a read-only handle.
type Session struct {
	ID         string // internal session id, unique for the call's lifetime
	ExternalID string // telephony call id (OrigCallID / TermCallID / streamId)
	CallerID   string
	Dialed     string
	Domain     string
	Agent      *Agent // immutable snapshot resolved at session start
	CreatedAt  time.Time
}

// Snapshot is a read-only view of a session exposed to the admin surface.
type Snapshot struct {
	SessionID  string    `json:"session_id"`
	ExternalID string    `json:"external_id"`
	Domain     string    `json:"domain"`
	CallerID   string    `json:"caller_id"`
	State      State     `json:"state"`
	AgentName  string    `json:"agent_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is the terminal record persisted when a session reaches
// Closed or Errored.
type Summary struct {
	SessionID       string        `json:"session_id"`
	ExternalID      string        `json:"external_id"`
	State           State         `json:"state"`
	Reason          string        `json:"reason"`
	Duration        time.Duration `json:"duration"`
	TranscriptLines int           `json:"transcript_lines"`
	StartedAt       time.Time     `json:"started_at"`
	EndedAt         time.Time     `json:"ended_at"`
}

// UserInitiated reports whether the session ended by caller/operator action
// rather than by a fault.
func (s Summary) UserInitiated() bool {
	return s.State == StateClosed
}

// Business represents a tenant resolved by account domain.
type Business struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Domain    string    `db:"domain"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Agent is the immutable per-business configuration governing a session:
// voice, system prompt, tool allowlist, and arbitrary settings. It is resolved
// once at session start and never mutated afterwards.
type Agent struct {
	ID           int64  `db:"id"`
	BusinessID   int64  `db:"business_id"`
	Name         string `db:"name"`
	SystemPrompt string `db:"system_prompt"`
	VoiceName    string `db:"voice_name"`

	// Tools is a JSONB array of allowed tool names.
	Tools json.RawMessage `db:"tools"`

	// Settings is an arbitrary JSONB configuration map.
	Settings json.RawMessage `db:"settings"`

	IsActive  bool      `db:"is_active"`
	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// AllowedTools decodes the tool allowlist. A missing or malformed list grants
// nothing.
func (a *Agent) AllowedTools() []string {
	if a == nil || len(a.Tools) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(a.Tools, &names); err != nil {
		return nil
	}
	return names
}

// ToolAllowed reports whether the agent grants the named capability.
func (a *Agent) ToolAllowed(name string) bool {
	for _, t := range a.AllowedTools() {
		if t == name {
			return true
		}
	}
	return false
}

// Setting returns a string-typed entry from the settings map.
func (a *Agent) Setting(key string) (string, bool) {
	if a == nil || len(a.Settings) == 0 {
		return "", false
	}
	var m map[string]interface{}
	if err := json.Unmarshal(a.Settings, &m); err != nil {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok
}

// Interaction is the persisted record of one call.
type Interaction struct {
	ID                 int64      `db:"id"`
	ExternalID         string     `db:"external_id"`
	BusinessID         *int64     `db:"business_id"`
	AgentID            *int64     `db:"agent_id"`
	CustomerIdentifier *string    `db:"customer_identifier"`
	StartedAt          time.Time  `db:"started_at"`
	EndedAt            *time.Time `db:"ended_at"`
	DurationSeconds    *int       `db:"duration_seconds"`
	Outcome            *string    `db:"outcome"`
	Summary            *string    `db:"summary"`
}

// Message is one persisted transcript line. Only final transcript events
// become messages.
type Message struct {
	ID            int64           `db:"id"`
	InteractionID int64           `db:"interaction_id"`
	Role          string          `db:"role"`
	Content       string          `db:"content"`
	FunctionCalls json.RawMessage `db:"function_calls"`
	CreatedAt     time.Time       `db:"created_at"`
}
