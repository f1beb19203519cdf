package seeds

import (
	"context"

	"connectai/internal/domain/call"
)

// RouteBuilder builds routing rule rows
type RouteBuilder struct {
	db  DBTX
	ctx context.Context
	r   *call.Route
}

// NewRouteBuilder creates a new route builder
func NewRouteBuilder(db DBTX, ctx context.Context) *RouteBuilder {
	return &RouteBuilder{
		db:  db,
		ctx: ctx,
		r: &call.Route{
			DomainPattern: "*",
			DialedPattern: "*",
			CallerPattern: "*",
			Priority:      100,
			IsActive:      true,
		},
	}
}

// WithBusiness sets the owning business
func (b *RouteBuilder) WithBusiness(businessID int64) *RouteBuilder {
	b.r.BusinessID = businessID
	return b
}

// WithAgent sets the target agent
func (b *RouteBuilder) WithAgent(agentID int64) *RouteBuilder {
	b.r.AgentID = agentID
	return b
}

// WithDomainPattern sets the account domain match
func (b *RouteBuilder) WithDomainPattern(pattern string) *RouteBuilder {
	b.r.DomainPattern = pattern
	return b
}

// WithDialedPattern sets the dialed number match
func (b *RouteBuilder) WithDialedPattern(pattern string) *RouteBuilder {
	b.r.DialedPattern = pattern
	return b
}

// WithCallerPattern sets the caller id match
func (b *RouteBuilder) WithCallerPattern(pattern string) *RouteBuilder {
	b.r.CallerPattern = pattern
	return b
}

// WithPriority sets the evaluation order; lower wins
func (b *RouteBuilder) WithPriority(priority int) *RouteBuilder {
	b.r.Priority = priority
	return b
}

// WithActive sets the active flag
func (b *RouteBuilder) WithActive(active bool) *RouteBuilder {
	b.r.IsActive = active
	return b
}

// Insert persists the route and returns it with its assigned id
func (b *RouteBuilder) Insert() (*call.Route, error) {
	query := `
		INSERT INTO routes (
			business_id, domain_pattern, dialed_pattern, caller_pattern,
			agent_id, priority, is_active, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := b.db.QueryRowContext(b.ctx, query,
		b.r.BusinessID, b.r.DomainPattern, b.r.DialedPattern, b.r.CallerPattern,
		b.r.AgentID, b.r.Priority, b.r.IsActive,
	).Scan(&b.r.ID, &b.r.CreatedAt, &b.r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b.r, nil
}
