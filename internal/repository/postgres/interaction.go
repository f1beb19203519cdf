package postgres

import (
	"context"
	"database/sql"
	"time"

	"connectai/internal/domain/call"
	"connectai/pkg/errors"
)

// InteractionRepository persists call records and their transcript lines.
type InteractionRepository struct {
	db DBTX
}

// NewInteractionRepository creates a new interaction repository
func NewInteractionRepository(db DBTX) *InteractionRepository {
	return &InteractionRepository{db: db}
}

// CreateInteraction opens a call record. Re-delivery of the same start event
// leaves the existing row untouched.
func (r *InteractionRepository) CreateInteraction(ctx context.Context, externalID string, businessID, agentID *int64, caller string) error {
	query := `
		INSERT INTO interactions (external_id, business_id, agent_id, customer_identifier, started_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		ON CONFLICT (external_id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, externalID, businessID, agentID, caller); err != nil {
		return errors.Wrap(err, "create interaction")
	}
	return nil
}

// GetByExternalID retrieves an interaction by its telephony call id.
func (r *InteractionRepository) GetByExternalID(ctx context.Context, externalID string) (*call.Interaction, error) {
	query := `
		SELECT id, external_id, business_id, agent_id, customer_identifier,
		       started_at, ended_at, duration_seconds, outcome, summary
		FROM interactions
		WHERE external_id = $1
	`

	in := &call.Interaction{}
	err := r.db.GetContext(ctx, in, query, externalID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get interaction")
	}
	return in, nil
}

// EndInteraction closes a call record. Closing an already-closed interaction
// keeps the first ending.
func (r *InteractionRepository) EndInteraction(ctx context.Context, externalID, outcome string, duration time.Duration) error {
	query := `
		UPDATE interactions
		SET ended_at = NOW(),
		    duration_seconds = $2,
		    outcome = $3
		WHERE external_id = $1 AND ended_at IS NULL
	`

	if _, err := r.db.ExecContext(ctx, query, externalID, int(duration.Seconds()), outcome); err != nil {
		return errors.Wrap(err, "end interaction")
	}
	return nil
}

// AppendMessage stores one final transcript line against its interaction.
func (r *InteractionRepository) AppendMessage(ctx context.Context, externalID, role, content string) error {
	query := `
		INSERT INTO messages (interaction_id, role, content, created_at)
		SELECT id, $2, $3, NOW()
		FROM interactions
		WHERE external_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, externalID, role, content)
	if err != nil {
		return errors.Wrap(err, "append message")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrNotFound, "no interaction for call %s", externalID)
	}
	return nil
}

// ListMessages retrieves an interaction's transcript in order.
func (r *InteractionRepository) ListMessages(ctx context.Context, interactionID int64) ([]call.Message, error) {
	query := `
		SELECT id, interaction_id, role, content, function_calls, created_at
		FROM messages
		WHERE interaction_id = $1
		ORDER BY created_at ASC, id ASC
	`

	var messages []call.Message
	if err := r.db.SelectContext(ctx, &messages, query, interactionID); err != nil {
		return nil, errors.Wrap(err, "list messages")
	}
	return messages, nil
}
