// Package transcript fans transcript events out from a session to an open set
// of subscribers. Publishing never blocks the session: a subscriber that
// cannot keep up loses its oldest queued events, counted per subscriber.
package transcript

import (
	"sync"
	"sync/atomic"
	"time"

	"connectai/pkg/logger"
)

// Entry is one transcript event flowing through the sink. Interim entries
// sharing an UtteranceID supersede each other; only final entries are durable.
type Entry struct {
	SessionID  string    `json:"session_id"`
	ExternalID string    `json:"external_id"`
	Domain     string    `json:"domain"`
	Role       string    `json:"role"`
	Text       string    `json:"text"`
	Final      bool      `json:"final"`
	Utterance  string    `json:"utterance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// Subscription is one subscriber's bounded view of the stream.
type Subscription struct {
	name    string
	ch      chan Entry
	dropped atomic.Int64
}

// Events yields the subscriber's queue. The channel closes when the sink
// closes.
func (s *Subscription) Events() <-chan Entry {
	return s.ch
}

// Name identifies the subscriber in logs and metrics.
func (s *Subscription) Name() string {
	return s.name
}

// Dropped returns how many events this subscriber lost to overflow.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Sink is the per-process broadcast hub. One sink serves all sessions;
// entries carry their session identity.
type Sink struct {
	mu     sync.RWMutex
	subs   []*Subscription
	closed bool

	queueSize int
	log       *logger.Logger

	// OnDrop, when set, observes each overflow drop. Used to feed metrics.
	OnDrop func(subscriber string)
}

// NewSink builds a sink whose subscribers get queues of the given size.
func NewSink(queueSize int) *Sink {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Sink{
		queueSize: queueSize,
		log:       logger.Get().With("component", "transcript_sink"),
	}
}

// Subscribe registers a named subscriber. Subscribing after Close returns a
// subscription whose channel is already closed.
func (s *Sink) Subscribe(name string) *Subscription {
	sub := &Subscription{name: name, ch: make(chan Entry, s.queueSize)}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(sub.ch)
		return sub
	}
	s.subs = append(s.subs, sub)
	return sub
}

// Publish delivers one entry to every subscriber. A full subscriber queue
// sheds its oldest entry to make room; the publisher never waits.
func (s *Sink) Publish(e Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	for _, sub := range s.subs {
		select {
		case sub.ch <- e:
			continue
		default:
		}

		// Queue full. Evict the oldest entry, then retry once; a concurrent
		// consumer may have drained in between, either way the new entry wins.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			if s.OnDrop != nil {
				s.OnDrop(sub.name)
			}
			s.log.Warnf("Transcript subscriber %s overflowed, dropped oldest event", sub.name)
		default:
		}
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			if s.OnDrop != nil {
				s.OnDrop(sub.name)
			}
		}
	}
}

// Close stops delivery and closes every subscriber channel. Safe to call once.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, sub := range s.subs {
		close(sub.ch)
	}
	s.subs = nil
}
