package main

// Script to backfill the ClickHouse transcript archive from the Postgres
// messages table. Useful after enabling ClickHouse on a deployment that has
// been running without it.
//
// Usage:
//   go run scripts/backfill_transcripts.go --since 2026-01-01 --batch 500

import (
	"context"
	"flag"
	"fmt"
	"time"

	"connectai/internal/adapters/clickhouse"
	"connectai/internal/adapters/config"
	pgclient "connectai/internal/adapters/postgres"
	"connectai/pkg/logger"
)

type archiveRow struct {
	ExternalID string    `db:"external_id"`
	Domain     string    `db:"domain"`
	Role       string    `db:"role"`
	Content    string    `db:"content"`
	CreatedAt  time.Time `db:"created_at"`
}

func main() {
	since := flag.String("since", "1970-01-01", "Copy messages created on or after this date (YYYY-MM-DD)")
	batchSize := flag.Int("batch", 500, "Rows per ClickHouse insert batch")
	flag.Parse()

	start, err := time.Parse("2006-01-02", *since)
	if err != nil {
		fmt.Printf("Error: invalid --since date (use YYYY-MM-DD): %v\n", err)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	log := logger.Get().With("component", "transcript_backfill")

	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pg.Close()

	ch, err := clickhouse.NewClient(cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to clickhouse: %v", err)
	}
	defer ch.Close()

	ctx := context.Background()

	var rows []archiveRow
	query := `
		SELECT i.external_id, COALESCE(b.domain, '') as domain,
		       m.role, m.content, m.created_at
		FROM messages m
		JOIN interactions i ON i.id = m.interaction_id
		LEFT JOIN businesses b ON b.id = i.business_id
		WHERE m.created_at >= $1
		ORDER BY m.created_at ASC, m.id ASC
	`
	if err := pg.DB().SelectContext(ctx, &rows, query, start); err != nil {
		log.Fatalf("Failed to read messages: %v", err)
	}

	log.Infow("Backfill starting", "rows", len(rows), "since", *since)

	insert := `
		INSERT INTO call_transcripts (
			session_id, external_id, domain, role, utterance_id, content, spoken_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	total := 0
	for offset := 0; offset < len(rows); offset += *batchSize {
		end := offset + *batchSize
		if end > len(rows) {
			end = len(rows)
		}

		batch, err := ch.Conn().PrepareBatch(ctx, insert)
		if err != nil {
			log.Fatalf("Failed to prepare batch: %v", err)
		}
		for _, r := range rows[offset:end] {
			// Session ids are not persisted in Postgres; the external call id
			// stands in for backfilled rows.
			if err := batch.Append(r.ExternalID, r.ExternalID, r.Domain, r.Role, "", r.Content, r.CreatedAt); err != nil {
				log.Fatalf("Failed to append row: %v", err)
			}
		}
		if err := batch.Send(); err != nil {
			log.Fatalf("Failed to send batch: %v", err)
		}

		total += end - offset
		log.Infow("Batch flushed", "copied", total, "remaining", len(rows)-total)
	}

	log.Infow("✅ Backfill complete", "rows", total)
}
