package transcript

import (
	"context"

	"connectai/pkg/logger"
)

// MessageStore persists final transcript lines against their interaction.
type MessageStore interface {
	AppendMessage(ctx context.Context, externalID, role, content string) error
}

// ArchiveStore writes transcript lines to the analytics store.
type ArchiveStore interface {
	ArchiveLine(ctx context.Context, e Entry) error
}

// EventPublisher publishes keyed JSON events to a topic.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// StoreWriter persists final lines through the message store. Interim entries
// pass through untouched so a superseded fragment never reaches the database.
type StoreWriter struct {
	store MessageStore
	sub   *Subscription
	log   *logger.Logger
}

// NewStoreWriter subscribes a database writer to the sink.
func NewStoreWriter(sink *Sink, store MessageStore) *StoreWriter {
	return &StoreWriter{
		store: store,
		sub:   sink.Subscribe("store_writer"),
		log:   logger.Get().With("component", "transcript_store_writer"),
	}
}

// Run consumes until the sink closes or ctx is cancelled. Write failures are
// logged and skipped; one bad row must not stall the stream.
func (w *StoreWriter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-w.sub.Events():
			if !ok {
				return
			}
			if !e.Final || e.Text == "" {
				continue
			}
			if err := w.store.AppendMessage(ctx, e.ExternalID, e.Role, e.Text); err != nil {
				w.log.Errorf("Failed to persist transcript line for %s: %v", e.ExternalID, err)
			}
		}
	}
}

// Publisher forwards final lines to the event stream keyed by session id so
// one call's lines stay ordered within a partition.
type Publisher struct {
	producer EventPublisher
	topic    string
	sub      *Subscription
	log      *logger.Logger
}

// NewPublisher subscribes a topic publisher to the sink.
func NewPublisher(sink *Sink, producer EventPublisher, topic string) *Publisher {
	return &Publisher{
		producer: producer,
		topic:    topic,
		sub:      sink.Subscribe("publisher"),
		log:      logger.Get().With("component", "transcript_publisher"),
	}
}

// Run consumes until the sink closes or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-p.sub.Events():
			if !ok {
				return
			}
			if !e.Final {
				continue
			}
			if err := p.producer.Publish(ctx, p.topic, e.SessionID, e); err != nil {
				p.log.Errorf("Failed to publish transcript line for %s: %v", e.SessionID, err)
			}
		}
	}
}

// Archiver copies final lines into the analytics store.
type Archiver struct {
	store ArchiveStore
	sub   *Subscription
	log   *logger.Logger
}

// NewArchiver subscribes an analytics archiver to the sink.
func NewArchiver(sink *Sink, store ArchiveStore) *Archiver {
	return &Archiver{
		store: store,
		sub:   sink.Subscribe("archiver"),
		log:   logger.Get().With("component", "transcript_archiver"),
	}
}

// Run consumes until the sink closes or ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-a.sub.Events():
			if !ok {
				return
			}
			if !e.Final {
				continue
			}
			if err := a.store.ArchiveLine(ctx, e); err != nil {
				a.log.Errorf("Failed to archive transcript line for %s: %v", e.SessionID, err)
			}
		}
	}
}
