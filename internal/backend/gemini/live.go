// Package gemini implements the backend stream contract over the Gemini Live
// API. One Stream wraps one live session; audio goes up as realtime PCM blobs
// and comes back as model turn parts.
package gemini

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"connectai/internal/adapters/config"
	"connectai/internal/backend"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// Connector opens Gemini Live sessions. Safe for concurrent use; one genai
// client is shared across all sessions.
type Connector struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

// NewConnector builds a connector from the Gemini configuration.
func NewConnector(ctx context.Context, cfg config.GeminiConfig) (*Connector, error) {
	be := genai.BackendGeminiAPI
	if strings.EqualFold(cfg.Backend, "vertex") {
		be = genai.BackendVertexAI
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: be,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	return &Connector{
		client: client,
		model:  cfg.Model,
		log:    logger.Get().With("component", "gemini_connector"),
	}, nil
}

// Connect opens one live session configured from the agent snapshot.
func (c *Connector) Connect(ctx context.Context, params backend.SessionParams) (backend.Stream, error) {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.ModalityAudio},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}

	if params.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: params.Voice},
			},
		}
	}
	if params.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: params.SystemPrompt}},
		}
	}
	if decls := toFunctionDeclarations(params.Tools); len(decls) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	session, err := c.client.Live.Connect(ctx, c.model, cfg)
	if err != nil {
		return nil, classifyConnectErr(err)
	}

	s := &liveStream{
		session:    session,
		sampleRate: params.InputSampleRate,
		events:     make(chan backend.Event, 32),
		closed:     make(chan struct{}),
		log:        c.log.With("session_model", c.model),
	}
	go s.receiveLoop()
	return s, nil
}

// classifyConnectErr separates transport faults, which merit the single
// in-call redial, from setup rejections (bad model name, auth), which are
// terminal.
func classifyConnectErr(err error) error {
	var ne net.Error
	if errors.As(err, &ne) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrBackendRetryable, "live connect failed: %v", err)
	}
	return errors.Wrapf(errors.ErrConnection, "live connect failed: %v", err)
}

type liveStream struct {
	session    *genai.Session
	sampleRate int
	events     chan backend.Event
	log        *logger.Logger

	closeOnce sync.Once
	closed    chan struct{}
	sendMu    sync.Mutex

	inUtterance  string
	outUtterance string
}

func (s *liveStream) SendAudio(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	select {
	case <-s.closed:
		return errors.ErrBackendClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{
			Data:     pcm,
			MIMEType: fmt.Sprintf("audio/pcm;rate=%d", s.sampleRate),
		},
	})
	if err != nil {
		return errors.Wrapf(errors.ErrConnection, "send audio: %v", err)
	}
	return nil
}

func (s *liveStream) SendText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	select {
	case <-s.closed:
		return errors.ErrBackendClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.session.SendClientContent(genai.LiveClientContentInput{
		Turns: []*genai.Content{{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		}},
	})
	if err != nil {
		return errors.Wrapf(errors.ErrConnection, "send text: %v", err)
	}
	return nil
}

func (s *liveStream) SendToolResult(ctx context.Context, res backend.ToolResult) error {
	select {
	case <-s.closed:
		return errors.ErrBackendClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	err := s.session.SendToolResponse(genai.LiveToolResponseInput{
		FunctionResponses: []*genai.FunctionResponse{{
			ID:       res.ID,
			Name:     res.Name,
			Response: res.Output,
		}},
	})
	if err != nil {
		return errors.Wrapf(errors.ErrConnection, "send tool result: %v", err)
	}
	return nil
}

func (s *liveStream) Events() <-chan backend.Event {
	return s.events
}

func (s *liveStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		if err := s.session.Close(); err != nil {
			s.log.Debugf("Live session close: %v", err)
		}
	})
	return nil
}

// receiveLoop reads server messages until the stream ends, translating them
// into backend events. Audio ordering is preserved; tool calls and
// transcripts are emitted in arrival order interleaved with audio.
func (s *liveStream) receiveLoop() {
	defer close(s.events)

	for {
		msg, err := s.session.Receive()
		if err != nil {
			select {
			case <-s.closed:
				// Local close; the consumer is already gone.
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				s.emit(backend.Event{Kind: backend.EventClosed})
				return
			}
			s.emit(backend.Event{
				Kind:      backend.EventError,
				Err:       errors.Wrapf(errors.ErrConnection, "live receive: %v", err),
				Retryable: true,
			})
			return
		}
		if msg == nil {
			continue
		}

		if msg.ToolCall != nil {
			for _, fc := range msg.ToolCall.FunctionCalls {
				if fc == nil {
					continue
				}
				id := fc.ID
				if id == "" {
					id = uuid.NewString()
				}
				s.emit(backend.Event{
					Kind: backend.EventToolCall,
					ToolCall: &backend.ToolCall{
						ID:   id,
						Name: fc.Name,
						Args: fc.Args,
					},
				})
			}
		}

		sc := msg.ServerContent
		if sc == nil {
			continue
		}

		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.emit(s.transcriptEvent(backend.RoleUser, sc.InputTranscription, &s.inUtterance))
		}
		if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
			s.emit(s.transcriptEvent(backend.RoleAssistant, sc.OutputTranscription, &s.outUtterance))
		}

		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part == nil || part.InlineData == nil {
					continue
				}
				if !strings.Contains(part.InlineData.MIMEType, "audio") {
					continue
				}
				s.emit(backend.Event{Kind: backend.EventAudio, Audio: part.InlineData.Data})
			}
		}

		if sc.Interrupted {
			s.emit(backend.Event{Kind: backend.EventInterrupted})
		}
		if sc.TurnComplete {
			s.outUtterance = ""
			s.emit(backend.Event{Kind: backend.EventTurnComplete})
		}
	}
}

func (s *liveStream) transcriptEvent(role string, tr *genai.Transcription, utterance *string) backend.Event {
	if *utterance == "" {
		*utterance = uuid.NewString()
	}
	ev := backend.Event{
		Kind: backend.EventTranscript,
		Transcript: &backend.Transcript{
			Role:        role,
			Text:        tr.Text,
			Final:       tr.Finished,
			UtteranceID: *utterance,
		},
	}
	if tr.Finished {
		*utterance = ""
	}
	return ev
}

func (s *liveStream) emit(ev backend.Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// toFunctionDeclarations converts tool declarations into genai schema form.
// Parameter maps use a narrow JSON-schema subset: type, description,
// properties, required, items, enum.
func toFunctionDeclarations(tools []backend.ToolDecl) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Parameters),
		})
	}
	return decls
}

func toSchema(m map[string]interface{}) *genai.Schema {
	if len(m) == 0 {
		return nil
	}

	schema := &genai.Schema{}
	switch t, _ := m["type"].(string); t {
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	case "array":
		schema.Type = genai.TypeArray
	default:
		schema.Type = genai.TypeObject
	}
	if d, ok := m["description"].(string); ok {
		schema.Description = d
	}
	if props, ok := m["properties"].(map[string]interface{}); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]interface{}); ok {
				schema.Properties[name] = toSchema(pm)
			}
		}
	}
	if req, ok := m["required"].([]interface{}); ok {
		for _, r := range req {
			if name, ok := r.(string); ok {
				schema.Required = append(schema.Required, name)
			}
		}
	}
	if items, ok := m["items"].(map[string]interface{}); ok {
		schema.Items = toSchema(items)
	}
	if enum, ok := m["enum"].([]interface{}); ok {
		for _, e := range enum {
			if v, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, v)
			}
		}
	}
	return schema
}
