package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "connectai/internal/adapters/clickhouse"
	"connectai/internal/adapters/kafka"
	pgclient "connectai/internal/adapters/postgres"
	redisclient "connectai/internal/adapters/redis"
	"connectai/internal/gateway"
	chrepo "connectai/internal/repository/clickhouse"
	"connectai/internal/transcript"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		// Covers the gateway drain (live calls get their drain window) plus
		// the transcript flush.
		shutdownTimeout: 60 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in the correct order
// This is critical for a live-call system - we must ensure:
// 1. No new calls accepted, live calls drained
// 2. Transcript sink closed so subscribers see the end of their queues
// 3. Subscriber goroutines finish delivering buffered lines
// 4. Transcript archive flushes its last batch
// 5. Producer closes after everything that publishes
// 6. Logs and errors flushed
// 7. Database connections last (other components may need them)
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	cancel context.CancelFunc,
	gatewayServer *gateway.Server,
	sink *transcript.Sink,
	archive *chrepo.TranscriptRepository,
	kafkaProducer *kafka.Producer,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop Gateway (drains live calls)
	// ========================================
	log.Info("[1/7] Stopping gateway...")
	gwCtx, gwCancel := context.WithTimeout(shutdownCtx, 30*time.Second)
	defer gwCancel()

	if gatewayServer != nil {
		if err := gatewayServer.Shutdown(gwCtx); err != nil {
			log.Error("Gateway shutdown failed", "error", err)
		} else {
			log.Info("✓ Gateway stopped")
		}
	}

	// ========================================
	// Step 2: Close Transcript Sink
	// Critical: close the sink BEFORE waiting for goroutines
	// This ends the subscriber ranges over their queues
	// ========================================
	log.Info("[2/7] Closing transcript sink...")
	if sink != nil {
		sink.Close()
	}
	cancel()
	log.Info("✓ Transcript sink closed")

	// ========================================
	// Step 3: Wait for Subscriber Goroutines
	// ========================================
	log.Info("[3/7] Waiting for subscriber goroutines...")
	l.waitForGoroutines(wg, 5*time.Second, log)

	// ========================================
	// Step 4: Flush Transcript Archive
	// ========================================
	log.Info("[4/7] Flushing transcript archive...")
	if archive != nil {
		flushCtx, flushCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := archive.Stop(flushCtx); err != nil {
			log.Error("Transcript archive flush failed", "error", err)
		} else {
			log.Info("✓ Transcript archive flushed")
		}
		flushCancel()
	}

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/7] Closing Kafka producer...")
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Error("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Flush Error Tracker and Sync Logs
	// ========================================
	log.Info("[6/7] Flushing error tracker...")
	l.flushErrorTracker(errorTracker, shutdownCtx, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 7: Close Database Connections
	// LAST - other components may need them during shutdown
	// ========================================
	log.Info("[7/7] Closing database connections...")
	l.closeDatabases(pgClient, chClient, redisClient, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warn("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(tracker errors.Tracker, ctx context.Context, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Error("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Error("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
