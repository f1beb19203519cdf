// Package backend defines the contract between a call session and the
// multimodal model it streams audio to. The concrete wire format is an
// implementation detail behind the Stream interface so the orchestrator never
// touches provider SDK types.
package backend

import (
	"context"
	"time"
)

// EventKind discriminates events read from the model stream.
type EventKind int

const (
	// EventAudio carries model speech as PCM at the backend output rate.
	EventAudio EventKind = iota
	// EventToolCall asks the application to execute a tool.
	EventToolCall
	// EventTranscript carries an interim or final transcript fragment.
	EventTranscript
	// EventInterrupted signals the model stopped speaking because the caller
	// barged in; queued playback should be flushed.
	EventInterrupted
	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete
	// EventClosed signals a clean end of the stream from the remote side.
	EventClosed
	// EventError signals a stream fault. Retryable marks transport faults
	// worth one reconnect attempt; anything else is terminal.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventToolCall:
		return "tool_call"
	case EventTranscript:
		return "transcript"
	case EventInterrupted:
		return "interrupted"
	case EventTurnComplete:
		return "turn_complete"
	case EventClosed:
		return "closed"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one deserialized message from the model stream. Audio events keep
// their relative order; tool calls and transcripts may interleave at any
// point and must never block audio delivery.
type Event struct {
	Kind       EventKind
	Audio      []byte
	ToolCall   *ToolCall
	Transcript *Transcript
	Err        error
	Retryable  bool
}

// ToolCall is a model-requested external action. ID correlates the eventual
// result; results may complete out of submission order.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ToolResult answers a ToolCall. Output is the handler result or a synthetic
// failure payload when the handler failed or timed out.
type ToolResult struct {
	ID     string
	Name   string
	Output map[string]interface{}
}

// Transcript is a speech-to-text fragment produced alongside audio.
// Interim fragments sharing an UtteranceID supersede each other; only final
// fragments are durable.
type Transcript struct {
	Role        string
	Text        string
	Final       bool
	UtteranceID string
	Timestamp   time.Time
}

// Speaker roles attached to transcripts.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolDecl describes one tool exposed to the model at session setup.
type ToolDecl struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// SessionParams configures one model stream. Values come from the session's
// immutable agent snapshot.
type SessionParams struct {
	SystemPrompt    string
	Voice           string
	Tools           []ToolDecl
	InputSampleRate int
}

// Stream is one bidirectional model connection owned by a single session.
// Send methods are safe for use from the inbound pump and the tool router
// concurrently; Events is read by exactly one consumer.
type Stream interface {
	// SendAudio writes one transcoded PCM frame to the model.
	SendAudio(ctx context.Context, pcm []byte) error

	// SendText injects a text event into the conversation (call notices, DTMF).
	SendText(ctx context.Context, text string) error

	// SendToolResult returns a tool outcome tagged with its correlation id.
	SendToolResult(ctx context.Context, res ToolResult) error

	// Events yields deserialized stream events. The channel closes after
	// EventClosed or EventError is delivered.
	Events() <-chan Event

	// Close releases the stream. Safe to call more than once.
	Close() error
}

// Connector opens model streams. Implementations decide the wire protocol;
// Connect must not return until the backend acknowledged the session setup or
// ctx expired.
type Connector interface {
	Connect(ctx context.Context, params SessionParams) (Stream, error)
}
