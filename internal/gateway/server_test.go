package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/internal/adapters/config"
	"connectai/internal/backend"
	"connectai/internal/domain/call"
	"connectai/internal/registry"
	"connectai/internal/tools"
	"connectai/internal/transcript"
	"connectai/pkg/errors"
)

type stubStream struct {
	mu        sync.Mutex
	audio     [][]byte
	events    chan backend.Event
	audioSeen chan struct{}
}

func newStubStream() *stubStream {
	return &stubStream{
		events:    make(chan backend.Event, 16),
		audioSeen: make(chan struct{}, 64),
	}
}

func (s *stubStream) SendAudio(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	s.audio = append(s.audio, pcm)
	s.mu.Unlock()
	s.audioSeen <- struct{}{}
	return nil
}

func (s *stubStream) SendText(ctx context.Context, text string) error { return nil }

func (s *stubStream) SendToolResult(ctx context.Context, res backend.ToolResult) error { return nil }

func (s *stubStream) Events() <-chan backend.Event { return s.events }

func (s *stubStream) Close() error { return nil }

type stubConnector struct {
	stream *stubStream
}

func (c *stubConnector) Connect(ctx context.Context, params backend.SessionParams) (backend.Stream, error) {
	return c.stream, nil
}

type stubResolver struct {
	agents map[string]*call.Agent
}

func (r *stubResolver) ResolveAgent(ctx context.Context, hdr call.RouteHeaders) (*call.Agent, error) {
	agent, ok := r.agents[hdr.AccountDomain]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "domain %s", hdr.AccountDomain)
	}
	return agent, nil
}

func testDeps(stream *stubStream) Deps {
	return Deps{
		Config: config.GatewayConfig{
			WriteTimeout:       time.Second,
			IdleTimeout:        5 * time.Second,
			MaxFramesPerSecond: 1000,
			FrameBurst:         1000,
		},
		SessionCfg: config.SessionConfig{
			ConnectTimeout:            time.Second,
			DrainTimeout:              500 * time.Millisecond,
			ToolTimeout:               time.Second,
			TranscodeFailureThreshold: 100,
			InboundQueueSize:          64,
			TranscriptQueueSize:       16,
		},
		Registry: registry.New(nil, time.Hour),
		Resolver: &stubResolver{agents: map[string]*call.Agent{
			"acme.example": {
				ID:           1,
				BusinessID:   1,
				Name:         "support",
				SystemPrompt: "You answer calls.",
				VoiceName:    "Sulafat",
				Tools:        json.RawMessage(`[]`),
			},
		}},
		Connector: &stubConnector{stream: stream},
		Tools:     tools.NewRegistry(),
		Sink:      transcript.NewSink(16),
	}
}

func dialStream(t *testing.T, deps Deps) (*websocket.Conn, *Server, func()) {
	t.Helper()
	srv := NewServer(deps)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleStream))

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn, srv, func() {
		conn.Close()
		ts.Close()
	}
}

func startEnvelope(domain string) string {
	return `{
		"event": "start",
		"start": {
			"streamId": "stream-1",
			"customParameters": [
				{"name": "AccountDomain", "value": "` + domain + `"},
				{"name": "NmsAni", "value": "15551230000"},
				{"name": "OrigCallID", "value": "orig-1"}
			]
		}
	}`
}

func TestGatewayRunsCallEndToEnd(t *testing.T) {
	stream := newStubStream()
	deps := testDeps(stream)
	conn, _, cleanup := dialStream(t, deps)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(startEnvelope("acme.example"))))

	require.Eventually(t, func() bool {
		return deps.Registry.Len() == 1
	}, 2*time.Second, 10*time.Millisecond, "start event must register a session")

	snaps := deps.Registry.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "orig-1", snaps[0].ExternalID)
	assert.Equal(t, "acme.example", snaps[0].Domain)

	payload := base64.StdEncoding.EncodeToString(make([]byte, 160))
	media := `{"event":"media","media":{"payload":"` + payload + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(media)))

	select {
	case <-stream.audioSeen:
	case <-time.After(2 * time.Second):
		t.Fatal("caller audio never reached the backend")
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"stop","stop":{"reason":"hangup"}}`)))

	require.Eventually(t, func() bool {
		return deps.Registry.Len() == 0
	}, 3*time.Second, 10*time.Millisecond, "stop event must unwind the session")
}

func TestGatewayRejectsUnknownDomain(t *testing.T) {
	stream := newStubStream()
	deps := testDeps(stream)
	conn, _, cleanup := dialStream(t, deps)
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(startEnvelope("nobody.example"))))

	// The gateway answers with an error envelope and closes.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "error", msg["event"])

	_, _, err = conn.ReadMessage()
	require.Error(t, err, "connection is torn down after rejection")
	assert.Equal(t, 0, deps.Registry.Len())
}

func TestGatewayIgnoresMediaBeforeStart(t *testing.T) {
	stream := newStubStream()
	deps := testDeps(stream)
	conn, _, cleanup := dialStream(t, deps)
	defer cleanup()

	media := `{"event":"media","media":{"payload":"AAAA"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(media)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(startEnvelope("acme.example"))))

	require.Eventually(t, func() bool {
		return deps.Registry.Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	stream.mu.Lock()
	defer stream.mu.Unlock()
	assert.Empty(t, stream.audio, "media before start is dropped")
}

func TestGatewayDuplicateCallRejected(t *testing.T) {
	stream := newStubStream()
	deps := testDeps(stream)

	connA, _, cleanupA := dialStream(t, deps)
	defer cleanupA()
	require.NoError(t, connA.WriteMessage(websocket.TextMessage, []byte(startEnvelope("acme.example"))))
	require.Eventually(t, func() bool { return deps.Registry.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Same OrigCallID arriving again must not spawn a second session.
	srvB := NewServer(deps)
	tsB := httptest.NewServer(http.HandlerFunc(srvB.handleStream))
	defer tsB.Close()
	urlB := "ws" + strings.TrimPrefix(tsB.URL, "http") + "/stream"
	connB, _, err := websocket.DefaultDialer.Dial(urlB, nil)
	require.NoError(t, err)
	defer connB.Close()

	require.NoError(t, connB.WriteMessage(websocket.TextMessage, []byte(startEnvelope("acme.example"))))

	connB.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := connB.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "error", msg["event"])
	assert.Equal(t, 1, deps.Registry.Len())
}
