package transcript

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(session, text string, final bool) Entry {
	return Entry{
		SessionID: session,
		Role:      "assistant",
		Text:      text,
		Final:     final,
		Utterance: "utt-1",
		Timestamp: time.Now(),
	}
}

func TestSinkBroadcastsToAllSubscribers(t *testing.T) {
	sink := NewSink(8)
	a := sink.Subscribe("a")
	b := sink.Subscribe("b")

	sink.Publish(entry("s1", "hello", true))
	sink.Close()

	gotA := <-a.Events()
	gotB := <-b.Events()
	assert.Equal(t, "hello", gotA.Text)
	assert.Equal(t, "hello", gotB.Text)

	_, ok := <-a.Events()
	assert.False(t, ok, "channel closes with the sink")
}

func TestSinkSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	sink := NewSink(2)
	slow := sink.Subscribe("slow")
	fast := sink.Subscribe("fast")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			sink.Publish(entry("s1", "line", false))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}

	// The slow subscriber kept only the newest entries and counted the rest.
	assert.Equal(t, int64(98), slow.Dropped())
	assert.Equal(t, int64(98), fast.Dropped())
	assert.Len(t, slow.ch, 2)
}

func TestSinkOverflowKeepsNewest(t *testing.T) {
	sink := NewSink(2)
	sub := sink.Subscribe("s")

	for _, text := range []string{"one", "two", "three"} {
		e := entry("s1", text, false)
		e.Utterance = text
		sink.Publish(e)
	}

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, "two", first.Text, "oldest entry was evicted")
	assert.Equal(t, "three", second.Text)
	assert.Equal(t, int64(1), sub.Dropped())
}

func TestSinkOnDropCallback(t *testing.T) {
	sink := NewSink(1)
	var mu sync.Mutex
	drops := map[string]int{}
	sink.OnDrop = func(name string) {
		mu.Lock()
		drops[name]++
		mu.Unlock()
	}
	sink.Subscribe("laggard")

	sink.Publish(entry("s1", "a", false))
	sink.Publish(entry("s1", "b", false))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, drops["laggard"])
}

type memoryStore struct {
	mu    sync.Mutex
	lines []string
}

func (m *memoryStore) AppendMessage(ctx context.Context, externalID, role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, role+": "+content)
	return nil
}

func TestStoreWriterPersistsExactlyFinalLines(t *testing.T) {
	sink := NewSink(16)
	store := &memoryStore{}
	writer := NewStoreWriter(sink, store)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writer.Run(context.Background())
	}()

	// Interim fragments grow, then the final line supersedes them all.
	e := entry("s1", "I", false)
	e.ExternalID = "call-9"
	sink.Publish(e)
	e.Text = "I need"
	sink.Publish(e)
	e.Text = "I need help with my order"
	e.Final = true
	sink.Publish(e)

	sink.Close()
	wg.Wait()

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.lines, 1, "exactly one persisted line per utterance")
	assert.Equal(t, "assistant: I need help with my order", store.lines[0])
}

type memoryPublisher struct {
	mu     sync.Mutex
	events []Entry
}

func (m *memoryPublisher) Publish(ctx context.Context, topic, key string, event interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event.(Entry))
	return nil
}

func TestPublisherForwardsFinalsKeyedBySession(t *testing.T) {
	sink := NewSink(16)
	producer := &memoryPublisher{}
	pub := NewPublisher(sink, producer, "calls.transcripts")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pub.Run(context.Background())
	}()

	sink.Publish(entry("s1", "partial", false))
	sink.Publish(entry("s1", "complete", true))
	sink.Close()
	wg.Wait()

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.events, 1)
	assert.Equal(t, "complete", producer.events[0].Text)
}
