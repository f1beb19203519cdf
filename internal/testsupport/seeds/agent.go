package seeds

import (
	"context"
	"encoding/json"

	"connectai/internal/domain/call"
)

// AgentBuilder builds agent configuration rows
type AgentBuilder struct {
	db  DBTX
	ctx context.Context
	a   *call.Agent
}

// NewAgentBuilder creates a new agent builder
func NewAgentBuilder(db DBTX, ctx context.Context) *AgentBuilder {
	return &AgentBuilder{
		db:  db,
		ctx: ctx,
		a: &call.Agent{
			Name:         "Test Agent",
			SystemPrompt: "You answer phone calls politely.",
			VoiceName:    "Sulafat",
			Tools:        json.RawMessage(`[]`),
			Settings:     json.RawMessage(`{}`),
			IsActive:     true,
			Version:      1,
		},
	}
}

// WithBusiness sets the owning business
func (b *AgentBuilder) WithBusiness(businessID int64) *AgentBuilder {
	b.a.BusinessID = businessID
	return b
}

// WithName sets the name
func (b *AgentBuilder) WithName(name string) *AgentBuilder {
	b.a.Name = name
	return b
}

// WithSystemPrompt sets the system prompt
func (b *AgentBuilder) WithSystemPrompt(prompt string) *AgentBuilder {
	b.a.SystemPrompt = prompt
	return b
}

// WithVoice sets the synthesized voice
func (b *AgentBuilder) WithVoice(voice string) *AgentBuilder {
	b.a.VoiceName = voice
	return b
}

// WithTools sets the tool allowlist
func (b *AgentBuilder) WithTools(names []string) *AgentBuilder {
	data, _ := json.Marshal(names)
	b.a.Tools = data
	return b
}

// WithSettings sets the settings map
func (b *AgentBuilder) WithSettings(settings map[string]interface{}) *AgentBuilder {
	data, _ := json.Marshal(settings)
	b.a.Settings = data
	return b
}

// WithActive sets the active flag
func (b *AgentBuilder) WithActive(active bool) *AgentBuilder {
	b.a.IsActive = active
	return b
}

// Insert persists the agent and returns it with its assigned id
func (b *AgentBuilder) Insert() (*call.Agent, error) {
	query := `
		INSERT INTO agents (
			business_id, name, system_prompt, voice_name,
			tools, settings, is_active, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := b.db.QueryRowContext(b.ctx, query,
		b.a.BusinessID, b.a.Name, b.a.SystemPrompt, b.a.VoiceName,
		[]byte(b.a.Tools), []byte(b.a.Settings), b.a.IsActive, b.a.Version,
	).Scan(&b.a.ID, &b.a.CreatedAt, &b.a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b.a, nil
}
