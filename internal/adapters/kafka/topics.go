package kafka

// Topic definitions for Kafka event streaming
const (
	// Final transcript lines, one message per utterance.
	TopicTranscripts = "calls.transcripts"

	// Session lifecycle events (started, ended, errored).
	TopicCallEvents = "calls.events"

	// End-of-call summaries for downstream analytics.
	TopicSummaries = "calls.summaries"
)
