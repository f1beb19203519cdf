package metrics

import (
	"context"
	"time"

	"connectai/pkg/logger"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// CustomCollector collects directory and interaction metrics from databases
type CustomCollector struct {
	log        *logger.Logger
	postgres   *sqlx.DB
	clickhouse driver.Conn

	// Descriptors
	totalBusinesses  *prometheus.Desc
	totalAgents      *prometheus.Desc
	openInteractions *prometheus.Desc
	calls24h         *prometheus.Desc
	messages24h      *prometheus.Desc
	archivedLines24h *prometheus.Desc
}

// NewCustomCollector creates a new custom metrics collector. clickhouse may be
// nil when the archive is disabled.
func NewCustomCollector(log *logger.Logger, postgres *sqlx.DB, clickhouse driver.Conn) *CustomCollector {
	return &CustomCollector{
		log:        log,
		postgres:   postgres,
		clickhouse: clickhouse,

		totalBusinesses: prometheus.NewDesc(
			"connectai_directory_businesses",
			"Active businesses in the call directory",
			nil, nil,
		),
		totalAgents: prometheus.NewDesc(
			"connectai_directory_agents",
			"Agents in the directory by active flag",
			[]string{"active"}, nil,
		),
		openInteractions: prometheus.NewDesc(
			"connectai_interactions_open",
			"Interactions started but not yet ended",
			nil, nil,
		),
		calls24h: prometheus.NewDesc(
			"connectai_calls_24h",
			"Calls started in the last 24h by outcome",
			[]string{"outcome"}, nil,
		),
		messages24h: prometheus.NewDesc(
			"connectai_messages_24h",
			"Transcript lines persisted in the last 24h",
			nil, nil,
		),
		archivedLines24h: prometheus.NewDesc(
			"connectai_archived_lines_24h",
			"Transcript lines archived to ClickHouse in the last 24h",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CustomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalBusinesses
	ch <- c.totalAgents
	ch <- c.openInteractions
	ch <- c.calls24h
	ch <- c.messages24h
	ch <- c.archivedLines24h
}

// Collect implements prometheus.Collector
func (c *CustomCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectDirectoryCounts(ctx, ch)
	c.collectInteractionStats(ctx, ch)
	c.collectMessageStats(ctx, ch)
	c.collectArchiveStats(ctx, ch)
}

func (c *CustomCollector) collectDirectoryCounts(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, "SELECT COUNT(*) FROM businesses WHERE is_active = true")
	if err != nil {
		c.log.Error("Failed to collect business count metric", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.totalBusinesses,
		prometheus.GaugeValue,
		float64(count),
	)

	type AgentStat struct {
		Active bool `db:"is_active"`
		Count  int  `db:"count"`
	}

	var stats []AgentStat
	err = c.postgres.SelectContext(ctx, &stats, `
		SELECT is_active, COUNT(*) as count
		FROM agents
		GROUP BY is_active
	`)
	if err != nil {
		c.log.Error("Failed to collect agent stats", "error", err)
		return
	}

	for _, stat := range stats {
		label := "false"
		if stat.Active {
			label = "true"
		}
		ch <- prometheus.MustNewConstMetric(
			c.totalAgents,
			prometheus.GaugeValue,
			float64(stat.Count),
			label,
		)
	}
}

func (c *CustomCollector) collectInteractionStats(ctx context.Context, ch chan<- prometheus.Metric) {
	var open int
	err := c.postgres.GetContext(ctx, &open, "SELECT COUNT(*) FROM interactions WHERE ended_at IS NULL")
	if err != nil {
		c.log.Error("Failed to collect open interaction count", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.openInteractions,
		prometheus.GaugeValue,
		float64(open),
	)

	type CallStat struct {
		Outcome string `db:"outcome"`
		Count   int    `db:"count"`
	}

	var stats []CallStat
	err = c.postgres.SelectContext(ctx, &stats, `
		SELECT COALESCE(outcome, 'in_progress') as outcome, COUNT(*) as count
		FROM interactions
		WHERE started_at > NOW() - INTERVAL '24 hours'
		GROUP BY COALESCE(outcome, 'in_progress')
	`)
	if err != nil {
		c.log.Error("Failed to collect call stats", "error", err)
		return
	}

	for _, stat := range stats {
		ch <- prometheus.MustNewConstMetric(
			c.calls24h,
			prometheus.GaugeValue,
			float64(stat.Count),
			stat.Outcome,
		)
	}
}

func (c *CustomCollector) collectMessageStats(ctx context.Context, ch chan<- prometheus.Metric) {
	var count int
	err := c.postgres.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM messages
		WHERE created_at > NOW() - INTERVAL '24 hours'
	`)
	if err != nil {
		c.log.Error("Failed to collect message stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.messages24h,
		prometheus.GaugeValue,
		float64(count),
	)
}

func (c *CustomCollector) collectArchiveStats(ctx context.Context, ch chan<- prometheus.Metric) {
	if c.clickhouse == nil {
		return
	}

	var count uint64
	row := c.clickhouse.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM call_transcripts
		WHERE spoken_at > now() - INTERVAL 24 HOUR
	`)
	if err := row.Scan(&count); err != nil {
		c.log.Error("Failed to collect archive stats", "error", err)
		return
	}

	ch <- prometheus.MustNewConstMetric(
		c.archivedLines24h,
		prometheus.GaugeValue,
		float64(count),
	)
}

// RegisterCustomCollector registers the custom collector
func RegisterCustomCollector(collector *CustomCollector) {
	prometheus.MustRegister(collector)
}
