package seeds

import (
	"context"

	"connectai/internal/domain/call"
)

// BusinessBuilder builds business (tenant) rows
type BusinessBuilder struct {
	db  DBTX
	ctx context.Context
	b   *call.Business
}

// NewBusinessBuilder creates a new business builder
func NewBusinessBuilder(db DBTX, ctx context.Context) *BusinessBuilder {
	return &BusinessBuilder{
		db:  db,
		ctx: ctx,
		b: &call.Business{
			Name:     "Test Business",
			Domain:   "test.example",
			IsActive: true,
		},
	}
}

// WithName sets the display name
func (b *BusinessBuilder) WithName(name string) *BusinessBuilder {
	b.b.Name = name
	return b
}

// WithDomain sets the account domain the carrier sends at handshake
func (b *BusinessBuilder) WithDomain(domain string) *BusinessBuilder {
	b.b.Domain = domain
	return b
}

// WithActive sets the active flag
func (b *BusinessBuilder) WithActive(active bool) *BusinessBuilder {
	b.b.IsActive = active
	return b
}

// Insert persists the business and returns it with its assigned id
func (b *BusinessBuilder) Insert() (*call.Business, error) {
	query := `
		INSERT INTO businesses (name, domain, is_active, created_at, updated_at)
		VALUES ($1, lower($2), $3, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	err := b.db.QueryRowContext(b.ctx, query, b.b.Name, b.b.Domain, b.b.IsActive).
		Scan(&b.b.ID, &b.b.CreatedAt, &b.b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b.b, nil
}
