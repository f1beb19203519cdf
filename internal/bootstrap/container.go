package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"connectai/internal/adapters/clickhouse"
	"connectai/internal/adapters/config"
	"connectai/internal/adapters/kafka"
	pgclient "connectai/internal/adapters/postgres"
	redisclient "connectai/internal/adapters/redis"
	"connectai/internal/backend/gemini"
	"connectai/internal/domain/call"
	"connectai/internal/gateway"
	"connectai/internal/metrics"
	"connectai/internal/registry"
	chrepo "connectai/internal/repository/clickhouse"
	"connectai/internal/repository/postgres"
	"connectai/internal/session"
	"connectai/internal/tools"
	"connectai/internal/transcript"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer (Data stores)
	PG    *pgclient.Client
	CH    *clickhouse.Client
	Redis *redisclient.Client

	// Domain Layer - Repositories
	Repos *Repositories

	// External Adapters
	Adapters *Adapters

	// Call pipeline components
	Pipeline *Pipeline

	// Application Layer
	Gateway *gateway.Server

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups all persistence repositories
type Repositories struct {
	Directory         *postgres.DirectoryRepository
	Interactions      *postgres.InteractionRepository
	TranscriptArchive *chrepo.TranscriptRepository // nil when ClickHouse is disabled
}

// Adapters groups external messaging adapters
type Adapters struct {
	KafkaProducer *kafka.Producer // nil when Kafka is disabled
}

// Pipeline groups the in-process call machinery: the shared tool registry,
// the transcript fan-out with its subscribers, the session registry, and the
// speech backend connector.
type Pipeline struct {
	Tools     *tools.Registry
	Sink      *transcript.Sink
	Registry  *registry.Registry
	Connector *gemini.Connector

	StoreWriter *transcript.StoreWriter
	Publisher   *transcript.Publisher
	Archiver    *transcript.Archiver
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:     &Repositories{},
		Adapters:  &Adapters{},
		Pipeline:  &Pipeline{},
		Lifecycle: NewLifecycle(),
		WG:        &sync.WaitGroup{},
		Context:   ctx,
		Cancel:    cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitPipeline()
	c.MustInitGateway()
}

// MustInitConfig loads configuration and logging
func (c *Container) MustInitConfig() {
	if c.Config == nil {
		cfg, err := config.Load()
		if err != nil {
			panic("failed to load config: " + err.Error())
		}
		c.Config = cfg
	}

	if c.Log == nil {
		c.Log = logger.Get()
	}
}

// MustInitInfrastructure connects the data stores. Postgres and Redis are
// required; ClickHouse is optional analytics storage.
func (c *Container) MustInitInfrastructure() {
	c.Log.Info("Initializing infrastructure...")

	pg, err := pgclient.NewClient(c.Config.Postgres)
	if err != nil {
		panic("failed to connect to postgres: " + err.Error())
	}
	c.PG = pg
	c.Log.Info("✓ PostgreSQL connected")

	redisClient, err := redisclient.NewClient(c.Config.Redis)
	if err != nil {
		panic("failed to connect to redis: " + err.Error())
	}
	c.Redis = redisClient
	c.Log.Info("✓ Redis connected")

	if c.Config.ClickHouse.Enabled {
		ch, err := clickhouse.NewClient(c.Config.ClickHouse)
		if err != nil {
			panic("failed to connect to clickhouse: " + err.Error())
		}
		c.CH = ch
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse disabled, transcript archive off")
	}
}

// MustInitRepositories wires repositories to their stores
func (c *Container) MustInitRepositories() {
	db := c.PG.DB()
	c.Repos.Directory = postgres.NewDirectoryRepository(db)
	c.Repos.Interactions = postgres.NewInteractionRepository(db)

	if c.CH != nil {
		c.Repos.TranscriptArchive = chrepo.NewTranscriptRepository(c.CH.Conn())
	}
}

// MustInitAdapters initializes messaging adapters
func (c *Container) MustInitAdapters() {
	var chConn driver.Conn
	if c.CH != nil {
		chConn = c.CH.Conn()
	}
	metrics.RegisterCustomCollector(metrics.NewCustomCollector(c.Log, c.PG.DB(), chConn))

	if c.Config.Kafka.Enabled {
		c.Adapters.KafkaProducer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers: c.Config.Kafka.Brokers,
			Async:   true,
		})
		c.Log.Info("✓ Kafka producer initialized")
	} else {
		c.Log.Info("Kafka disabled, transcript publishing off")
	}
}

// MustInitPipeline builds the shared call machinery
func (c *Container) MustInitPipeline() {
	c.Pipeline.Tools = tools.NewRegistry()
	tools.RegisterBuiltinTools(c.Pipeline.Tools)

	sink := transcript.NewSink(c.Config.Session.TranscriptQueueSize)
	sink.OnDrop = func(subscriber string) {
		metrics.TranscriptDropped.WithLabelValues(subscriber).Inc()
	}
	c.Pipeline.Sink = sink

	c.Pipeline.StoreWriter = transcript.NewStoreWriter(sink, c.Repos.Interactions)
	if c.Adapters.KafkaProducer != nil {
		c.Pipeline.Publisher = transcript.NewPublisher(sink, c.Adapters.KafkaProducer, kafka.TopicTranscripts)
	}
	if c.Repos.TranscriptArchive != nil {
		c.Pipeline.Archiver = transcript.NewArchiver(sink, c.Repos.TranscriptArchive)
	}

	c.Pipeline.Registry = registry.New(c.Redis, c.Config.Session.OwnershipTTL)

	connector, err := gemini.NewConnector(c.Context, c.Config.Gemini)
	if err != nil {
		panic("failed to initialize speech backend: " + err.Error())
	}
	c.Pipeline.Connector = connector
}

// MustInitGateway assembles the telephony listener
func (c *Container) MustInitGateway() {
	c.Gateway = gateway.NewServer(gateway.Deps{
		Config:       c.Config.Gateway,
		SessionCfg:   c.Config.Session,
		Registry:     c.Pipeline.Registry,
		Resolver:     c.Repos.Directory,
		Interactions: c.Repos.Interactions,
		Connector:    c.Pipeline.Connector,
		Tools:        c.Pipeline.Tools,
		Sink:         c.Pipeline.Sink,
		Summary:      c.summaryHook(),
	})
}

// summaryHook closes the interaction row and announces the call's end. Runs
// once per session after the orchestrator reaches a terminal state.
func (c *Container) summaryHook() session.SummaryHook {
	producer := c.Adapters.KafkaProducer
	interactions := c.Repos.Interactions
	log := c.Log.With("component", "summary_hook")

	return func(_ context.Context, sum call.Summary) {
		// Detached from the session context: the record must close even when
		// the call ended because the process is shutting down.
		opCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := interactions.EndInteraction(opCtx, sum.ExternalID, sum.Reason, sum.Duration); err != nil {
			log.Errorf("Failed to end interaction %s: %v", sum.ExternalID, err)
		}

		if producer == nil {
			return
		}
		if err := producer.Publish(opCtx, kafka.TopicSummaries, sum.ExternalID, sum); err != nil {
			log.Warnf("Failed to publish call summary for %s: %v", sum.ExternalID, err)
		}

		ended := struct {
			Type       string `json:"type"`
			SessionID  string `json:"session_id"`
			ExternalID string `json:"external_id"`
			State      string `json:"state"`
			Reason     string `json:"reason"`
		}{
			Type:       "call_ended",
			SessionID:  sum.SessionID,
			ExternalID: sum.ExternalID,
			State:      string(sum.State),
			Reason:     sum.Reason,
		}
		if err := producer.Publish(opCtx, kafka.TopicCallEvents, sum.ExternalID, ended); err != nil {
			log.Warnf("Failed to publish call event for %s: %v", sum.ExternalID, err)
		}
	}
}

// Start launches the background consumers. The gateway itself is started by
// the caller so its listen error surfaces in main.
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.TranscriptArchive != nil {
		c.Repos.TranscriptArchive.Start(c.Context)
	}

	c.startSubscriber("store_writer", c.Pipeline.StoreWriter.Run)
	if c.Pipeline.Publisher != nil {
		c.startSubscriber("publisher", c.Pipeline.Publisher.Run)
	}
	if c.Pipeline.Archiver != nil {
		c.startSubscriber("archiver", c.Pipeline.Archiver.Run)
	}

	c.Log.Info("✓ All systems started")
	return nil
}

func (c *Container) startSubscriber(name string, run func(ctx context.Context)) {
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		run(c.Context)
	}()
	c.Log.Infow("✓ Transcript subscriber started", "subscriber", name)
}

// Shutdown performs graceful shutdown of all components
func (c *Container) Shutdown() {
	c.Lifecycle.Shutdown(
		c.WG,
		c.Cancel,
		c.Gateway,
		c.Pipeline.Sink,
		c.Repos.TranscriptArchive,
		c.Adapters.KafkaProducer,
		c.PG,
		c.CH,
		c.Redis,
		c.ErrorTracker,
		c.Log,
	)
}
