package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"connectai/internal/adapters/config"
	"connectai/internal/backend"
	"connectai/internal/domain/call"
	"connectai/internal/metrics"
	"connectai/internal/registry"
	"connectai/internal/session"
	"connectai/internal/tools"
	"connectai/internal/transcript"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// AgentResolver finds the agent configuration for a call's routing headers.
// A call with no agent is rejected before any backend resources are spent.
type AgentResolver interface {
	ResolveAgent(ctx context.Context, hdr call.RouteHeaders) (*call.Agent, error)
}

// InteractionStore records call lifecycle rows. Optional; a nil store skips
// persistence.
type InteractionStore interface {
	CreateInteraction(ctx context.Context, externalID string, businessID, agentID *int64, caller string) error
}

// Deps wires the gateway to the rest of the process.
type Deps struct {
	Config       config.GatewayConfig
	SessionCfg   config.SessionConfig
	Registry     *registry.Registry
	Resolver     AgentResolver
	Interactions InteractionStore
	Connector    backend.Connector
	Tools        *tools.Registry
	Sink         *transcript.Sink
	Summary      session.SummaryHook
}

// Server is the telephony-facing listener: the media WebSocket plus health,
// metrics, and the admin session list.
type Server struct {
	deps       Deps
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        *logger.Logger

	wg sync.WaitGroup
}

// NewServer configures the listener and its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  deps.Config.ReadBufferSize,
			WriteBufferSize: deps.Config.WriteBufferSize,
			// Carriers connect server-to-server; there is no browser origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.Get().With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/sessions", s.handleSessions)

	s.httpServer = &http.Server{
		Addr:        deps.Config.ListenAddr(),
		Handler:     mux,
		IdleTimeout: deps.Config.IdleTimeout,
	}
	return s
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.log.Infof("Gateway listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "gateway server failed")
	}
	return nil
}

// Shutdown stops accepting streams and waits for live calls to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Stopping gateway...")
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("Shutdown deadline hit with sessions still draining")
	}

	if err != nil {
		return errors.Wrap(err, "gateway shutdown failed")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, s.deps.Registry.Len())
}

// handleSessions lists live sessions. Read-only; state stays with the
// orchestrators.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.deps.Registry.Snapshots())
}

// handleStream owns one carrier connection from upgrade to close.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	metrics.WebSocketConnections.Inc()
	defer metrics.WebSocketConnections.Dec()

	s.wg.Add(1)
	defer s.wg.Done()

	c := &streamConn{
		server:  s,
		conn:    conn,
		leg:     NewLeg(conn, "", s.deps.Config.WriteTimeout),
		limiter: rate.NewLimiter(rate.Limit(s.deps.Config.MaxFramesPerSecond), s.deps.Config.FrameBurst),
		log:     s.log.With("remote", r.RemoteAddr),
	}
	c.run(r.Context())
}

// streamConn is the per-connection read loop state.
type streamConn struct {
	server  *Server
	conn    *websocket.Conn
	leg     *Leg
	limiter *rate.Limiter
	log     *logger.Logger

	orch    *session.Orchestrator
	runDone chan struct{}
}

func (c *streamConn) run(ctx context.Context) {
	stopReason := "socket_closed"
	defer func() {
		if c.orch != nil {
			c.orch.HandleStop(stopReason)
			<-c.runDone
		} else {
			_ = c.leg.Close()
		}
	}()

	idle := c.server.deps.Config.IdleTimeout
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				stopReason = "idle_timeout"
				c.log.Warnf("No traffic for %s, closing stream", idle)
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnf("Stream read failed: %v", err)
			}
			return
		}

		msg, err := ParseMessage(data)
		if err != nil {
			c.log.Debugf("Skipping malformed envelope: %v", err)
			continue
		}

		switch msg.Event {
		case EventStart:
			if c.orch != nil {
				c.log.Warn("Duplicate start event ignored")
				continue
			}
			if err := c.startSession(ctx, msg); err != nil {
				c.log.Errorf("Session start rejected: %v", err)
				_ = c.leg.SendError(err.Error())
				return
			}

		case EventMedia:
			if c.orch == nil || msg.Media == nil {
				continue
			}
			if !c.limiter.Allow() {
				metrics.FramesRateLimited.Inc()
				continue
			}
			c.orch.HandleMedia(msg.Media.Payload)

		case EventDTMF:
			if c.orch != nil && msg.DTMF != nil {
				c.orch.HandleDTMF(msg.DTMF.Digit)
			}

		case EventStop:
			reason := msg.Reason
			if msg.Stop != nil && msg.Stop.Reason != "" {
				reason = msg.Stop.Reason
			}
			if c.orch != nil {
				c.orch.HandleStop(reason)
			}
			return

		default:
			c.log.Debugf("Ignoring unknown event %q", msg.Event)
		}
	}
}

// startSession resolves routing, claims the call, and launches the
// orchestrator.
func (c *streamConn) startSession(ctx context.Context, msg Message) error {
	deps := c.server.deps
	sessionID := uuid.NewString()
	details := parseStart(msg, sessionID)
	c.leg.SetStreamID(details.StreamID)

	if details.Headers.AccountDomain == "" {
		return errors.Wrap(errors.ErrConfiguration, "start event carries no account domain")
	}

	agent, err := deps.Resolver.ResolveAgent(ctx, details.Headers)
	if err != nil {
		return errors.Wrapf(errors.ErrConfiguration, "no agent for domain %s: %v", details.Headers.AccountDomain, err)
	}

	sess := &call.Session{
		ID:         sessionID,
		ExternalID: details.ExternalID,
		CallerID:   details.Headers.CallerID,
		Dialed:     details.Headers.Dialed,
		Domain:     details.Headers.AccountDomain,
		Agent:      agent,
		CreatedAt:  time.Now(),
	}

	orch := session.New(sess, c.leg, deps.Connector, deps.Tools, deps.Sink, deps.SessionCfg, deps.Summary)
	if err := deps.Registry.Add(ctx, orch); err != nil {
		return err
	}

	if deps.Interactions != nil {
		var businessID, agentID *int64
		if agent != nil {
			businessID = &agent.BusinessID
			agentID = &agent.ID
		}
		if err := deps.Interactions.CreateInteraction(ctx, sess.ExternalID, businessID, agentID, sess.CallerID); err != nil {
			c.log.Errorf("Interaction create failed for %s: %v", sess.ExternalID, err)
		}
	}

	c.orch = orch
	c.runDone = make(chan struct{})
	go func() {
		defer close(c.runDone)
		defer deps.Registry.Remove(context.Background(), sess.ID)
		// Detached from the request context: the call outlives HTTP semantics
		// and ends through its own lifecycle.
		_ = orch.Run(context.Background())
	}()

	c.log.Infof("Call started: session=%s external=%s domain=%s agent=%s",
		sess.ID, sess.ExternalID, sess.Domain, agent.Name)
	return nil
}
