package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"connectai/internal/transcript"
	"connectai/pkg/clickhouse"
	"connectai/pkg/logger"
)

// TranscriptRepository archives final transcript lines for analytics.
// Uses the batch writer: single-row inserts would crush ClickHouse under call
// volume.
type TranscriptRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter
}

// NewTranscriptRepository creates a new transcript archive repository.
func NewTranscriptRepository(conn driver.Conn) *TranscriptRepository {
	repo := &TranscriptRepository{conn: conn}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig{
		Conn:         conn,
		FlushFunc:    repo.flushBatch,
		TableName:    "call_transcripts",
		MaxBatchSize: 500,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// Start begins the background flush loop
func (r *TranscriptRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop gracefully shuts down the batch writer
func (r *TranscriptRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// ArchiveLine buffers one final line for the next batch insert.
func (r *TranscriptRepository) ArchiveLine(ctx context.Context, e transcript.Entry) error {
	return r.batchWriter.Add(ctx, e)
}

func (r *TranscriptRepository) flushBatch(ctx context.Context, batch []interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	log := logger.Get().With("component", "transcript_archive_batch")

	query := `
		INSERT INTO call_transcripts (
			session_id, external_id, domain, role, utterance_id, content, spoken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	prepared, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}

	for _, item := range batch {
		e, ok := item.(transcript.Entry)
		if !ok {
			log.Warnf("Skipping unexpected batch item of type %T", item)
			continue
		}
		if err := prepared.Append(
			e.SessionID, e.ExternalID, e.Domain, e.Role, e.Utterance, e.Text, e.Timestamp,
		); err != nil {
			return err
		}
	}

	if err := prepared.Send(); err != nil {
		return err
	}

	log.Debugf("Flushed %d transcript lines", len(batch))
	return nil
}
