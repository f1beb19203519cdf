package postgres

import (
	"context"
	"database/sql"

	"connectai/internal/domain/call"
	"connectai/pkg/errors"
)

// DirectoryRepository answers the routing questions asked at call setup:
// which business owns a domain and which agent takes the call.
type DirectoryRepository struct {
	db DBTX
}

// NewDirectoryRepository creates a new directory repository
func NewDirectoryRepository(db DBTX) *DirectoryRepository {
	return &DirectoryRepository{db: db}
}

// GetBusinessByDomain retrieves the active business owning an account domain.
func (r *DirectoryRepository) GetBusinessByDomain(ctx context.Context, domain string) (*call.Business, error) {
	query := `
		SELECT id, name, domain, is_active, created_at, updated_at
		FROM businesses
		WHERE lower(domain) = lower($1) AND is_active = true
	`

	b := &call.Business{}
	err := r.db.GetContext(ctx, b, query, domain)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get business by domain")
	}
	return b, nil
}

// GetAgentByID retrieves one agent row.
func (r *DirectoryRepository) GetAgentByID(ctx context.Context, id int64) (*call.Agent, error) {
	query := `
		SELECT id, business_id, name, system_prompt, voice_name,
		       tools, settings, is_active, version, created_at, updated_at
		FROM agents
		WHERE id = $1
	`

	a := &call.Agent{}
	err := r.db.GetContext(ctx, a, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get agent by id")
	}
	return a, nil
}

// GetActiveAgentForDomain retrieves the newest active agent for a domain.
func (r *DirectoryRepository) GetActiveAgentForDomain(ctx context.Context, domain string) (*call.Agent, error) {
	query := `
		SELECT a.id, a.business_id, a.name, a.system_prompt, a.voice_name,
		       a.tools, a.settings, a.is_active, a.version, a.created_at, a.updated_at
		FROM agents a
		JOIN businesses b ON b.id = a.business_id
		WHERE lower(b.domain) = lower($1)
		  AND a.is_active = true
		  AND b.is_active = true
		ORDER BY a.updated_at DESC
		LIMIT 1
	`

	a := &call.Agent{}
	err := r.db.GetContext(ctx, a, query, domain)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get active agent for domain")
	}
	return a, nil
}

// ListRoutes retrieves a business's active routes in priority order.
func (r *DirectoryRepository) ListRoutes(ctx context.Context, businessID int64) ([]call.Route, error) {
	query := `
		SELECT id, business_id, domain_pattern, dialed_pattern, caller_pattern,
		       agent_id, priority, is_active, created_at, updated_at
		FROM routes
		WHERE business_id = $1 AND is_active = true
		ORDER BY priority ASC, id ASC
	`

	var routes []call.Route
	if err := r.db.SelectContext(ctx, &routes, query, businessID); err != nil {
		return nil, errors.Wrap(err, "list routes")
	}
	return routes, nil
}

// ResolveAgent picks the agent for a call. Routes are consulted first in
// priority order; with no matching route the domain's newest active agent
// takes the call.
func (r *DirectoryRepository) ResolveAgent(ctx context.Context, hdr call.RouteHeaders) (*call.Agent, error) {
	business, err := r.GetBusinessByDomain(ctx, hdr.AccountDomain)
	if err != nil {
		return nil, err
	}

	routes, err := r.ListRoutes(ctx, business.ID)
	if err != nil {
		return nil, err
	}
	for _, route := range routes {
		if !route.Matches(hdr) {
			continue
		}
		agent, err := r.GetAgentByID(ctx, route.AgentID)
		if errors.Is(err, errors.ErrNotFound) || (err == nil && !agent.IsActive) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return agent, nil
	}

	return r.GetActiveAgentForDomain(ctx, hdr.AccountDomain)
}
