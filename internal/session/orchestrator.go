// Package session runs the per-call orchestrator: the single owner of a
// call's state machine, its two directional audio pumps, and the fan-out of
// backend events to tools and transcripts.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"connectai/internal/adapters/config"
	"connectai/internal/audio"
	"connectai/internal/backend"
	"connectai/internal/domain/call"
	"connectai/internal/metrics"
	"connectai/internal/tools"
	"connectai/internal/transcript"
	"connectai/pkg/errors"
	"connectai/pkg/logger"
)

// TelephonyLeg is the caller side of the bridge as the orchestrator sees it.
// Implementations serialize writes; all methods must be safe after close.
type TelephonyLeg interface {
	// SendMedia writes one mu-law payload to the caller.
	SendMedia(payload []byte) error
	// SendClear flushes audio the carrier has buffered but not yet played.
	SendClear() error
	// SendStop tells the carrier to tear the stream down.
	SendStop(reason string) error
	// Close closes the underlying connection.
	Close() error
}

// SummaryHook observes the terminal summary of a session. It runs on the
// orchestrator goroutine after the leg has been released; implementations
// should return quickly.
type SummaryHook func(ctx context.Context, sum call.Summary)

type inboundItem struct {
	media    string
	hasMedia bool
	dtmf     string
}

type endState struct {
	state  call.State
	reason string
}

// Orchestrator drives one call from Created to a terminal state. All state
// transitions happen here; every other component sees the session read-only.
type Orchestrator struct {
	sess      *call.Session
	leg       TelephonyLeg
	connector backend.Connector
	toolReg   *tools.Registry
	sink      *transcript.Sink
	cfg       config.SessionConfig
	hook      SummaryHook
	log       *logger.Logger

	mu        sync.RWMutex
	state     call.State
	stream    backend.Stream
	startedAt time.Time

	inbound  chan inboundItem
	outbound chan []byte
	quit     chan struct{}
	endOnce sync.Once
	end     endState

	pendingEnd      atomic.Value // endState requested by the end_call tool
	transcriptLines atomic.Int64
}

// New builds an orchestrator for one call. Run must be called exactly once.
func New(
	sess *call.Session,
	leg TelephonyLeg,
	connector backend.Connector,
	toolReg *tools.Registry,
	sink *transcript.Sink,
	cfg config.SessionConfig,
	hook SummaryHook,
) *Orchestrator {
	return &Orchestrator{
		sess:      sess,
		leg:       leg,
		connector: connector,
		toolReg:   toolReg,
		sink:      sink,
		cfg:       cfg,
		hook:      hook,
		log: logger.Get().With(
			"component", "session",
			"session_id", sess.ID,
			"external_id", sess.ExternalID,
		),
		state:    call.StateCreated,
		inbound:  make(chan inboundItem, cfg.InboundQueueSize),
		outbound: make(chan []byte, cfg.OutboundQueueSize),
		quit:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() call.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Snapshot implements the registry member contract.
func (o *Orchestrator) Snapshot() call.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	snap := call.Snapshot{
		SessionID:  o.sess.ID,
		ExternalID: o.sess.ExternalID,
		Domain:     o.sess.Domain,
		CallerID:   o.sess.CallerID,
		State:      o.state,
		CreatedAt:  o.sess.CreatedAt,
	}
	if o.sess.Agent != nil {
		snap.AgentName = o.sess.Agent.Name
	}
	return snap
}

// HandleMedia enqueues one base64 mu-law payload from the caller. It never
// blocks; when the pump is behind, the newest frame is shed. Media after a
// terminal trigger is ignored.
func (o *Orchestrator) HandleMedia(payload string) {
	select {
	case <-o.quit:
		return
	default:
	}
	select {
	case o.inbound <- inboundItem{media: payload, hasMedia: true}:
	default:
		metrics.FramesRateLimited.Inc()
	}
}

// HandleDTMF forwards a keypad digit to the model as a text notice.
func (o *Orchestrator) HandleDTMF(digit string) {
	select {
	case <-o.quit:
		return
	default:
	}
	select {
	case o.inbound <- inboundItem{dtmf: digit}:
	default:
	}
}

// HandleStop reacts to the caller or carrier ending the stream. The session
// reaches a terminal state within the drain timeout.
func (o *Orchestrator) HandleStop(reason string) {
	if reason == "" {
		reason = "caller_disconnected"
	}
	o.terminate(call.StateClosed, reason)
}

// RequestEnd implements the control surface handed to tools: the session hangs
// up once the current model turn finishes playing out.
func (o *Orchestrator) RequestEnd(outcome, reason string) {
	o.pendingEnd.Store(endState{
		state:  call.StateClosed,
		reason: fmt.Sprintf("agent_ended:%s", outcome),
	})
	o.log.Infof("Agent requested end of call: outcome=%s reason=%s", outcome, reason)
}

// Run drives the session to a terminal state and returns the summary error, if
// any. It blocks for the lifetime of the call.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.startedAt = time.Now()
	o.mu.Unlock()

	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	if err := o.transition(call.StateConnecting); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := o.connect(runCtx)
	if err != nil {
		metrics.BackendConnects.WithLabelValues("error").Inc()
		o.terminate(call.StateErrored, "backend_connect_failed")
		o.finalize(ctx, cancel, nil, nil)
		return err
	}
	metrics.BackendConnects.WithLabelValues("success").Inc()

	o.mu.Lock()
	o.stream = stream
	o.mu.Unlock()

	if err := o.transition(call.StateActive); err != nil {
		stream.Close()
		return err
	}
	o.log.Info("Session active")

	router := tools.NewRouter(o.toolReg, o.sess.Agent.AllowedTools(), o.cfg.ToolTimeout)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		defer wg.Done()
		o.inboundPump(runCtx)
	}()
	go func() {
		defer wg.Done()
		o.outboundPump(runCtx)
	}()
	go func() {
		defer wg.Done()
		o.backendLoop(runCtx, router)
	}()
	go func() {
		defer wg.Done()
		o.toolResultLoop(runCtx, router)
	}()

	// One of the loops or an external Handle* call decides the outcome.
	select {
	case <-o.quit:
	case <-ctx.Done():
		o.terminate(call.StateClosed, "shutdown")
	}

	o.finalize(ctx, cancel, router, &wg)

	o.mu.RLock()
	end := o.end
	o.mu.RUnlock()
	if end.state == call.StateErrored {
		return errors.Wrapf(errors.ErrInternal, "session %s errored: %s", o.sess.ID, end.reason)
	}
	return nil
}

// connect opens the model stream within the connect timeout. One retry is
// allowed when the failure is transport-level.
func (o *Orchestrator) connect(ctx context.Context) (backend.Stream, error) {
	params := backend.SessionParams{
		InputSampleRate: audio.FormatBackendIn.SampleRate,
	}
	if agent := o.sess.Agent; agent != nil {
		params.SystemPrompt = agent.SystemPrompt
		params.Voice = agent.VoiceName
		params.Tools = o.toolReg.Declarations(agent.AllowedTools())
	}

	connectCtx, cancel := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	defer cancel()

	stream, err := o.connector.Connect(connectCtx, params)
	if err == nil {
		return stream, nil
	}
	if !errors.Is(err, errors.ErrBackendRetryable) {
		return nil, err
	}

	o.log.Warnf("Backend connect failed, retrying once: %v", err)
	retryCtx, cancelRetry := context.WithTimeout(ctx, o.cfg.ConnectTimeout)
	defer cancelRetry()
	return o.connector.Connect(retryCtx, params)
}

// inboundPump moves caller audio to the model: mu-law 8k in, PCM 16k out.
// Consecutive malformed frames are dropped and counted; crossing the
// threshold errors the session. Send failures never kill the pump: a closed
// stream means the mid-call reconnect is in flight and the next frame reads
// the replacement.
func (o *Orchestrator) inboundPump(ctx context.Context) {
	transcoder, err := audio.NewTranscoder(audio.FormatTelephony, audio.FormatBackendIn)
	if err != nil {
		o.terminate(call.StateErrored, "transcoder_init_failed")
		return
	}

	failures := 0
	for {
		var item inboundItem
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			o.flushInbound(ctx, transcoder)
			return
		case item = <-o.inbound:
		}

		if item.dtmf != "" {
			notice := fmt.Sprintf("The caller pressed the %s key on the keypad.", item.dtmf)
			if err := o.currentStream().SendText(ctx, notice); err != nil {
				o.log.Warnf("DTMF forward failed: %v", err)
			}
			continue
		}

		data, decodeErr := base64.StdEncoding.DecodeString(item.media)
		var out audio.Frame
		err := decodeErr
		if err == nil {
			frame := audio.NewFrame(data, audio.FormatTelephony, audio.DirectionInbound)
			out, err = transcoder.Convert(frame)
		}
		if err != nil {
			failures++
			metrics.TranscodeFailures.WithLabelValues(audio.DirectionInbound.String()).Inc()
			o.log.Debugf("Dropped malformed inbound frame (%d consecutive): %v", failures, err)
			if failures >= o.cfg.TranscodeFailureThreshold {
				o.terminate(call.StateErrored, "transcode_failure_threshold")
				return
			}
			continue
		}
		failures = 0
		metrics.AudioFrames.WithLabelValues(audio.DirectionInbound.String()).Inc()

		if err := o.currentStream().SendAudio(ctx, out.Data); err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errors.ErrBackendClosed) {
				o.log.Debugf("Frame dropped while the stream is being replaced")
			} else {
				o.log.Warnf("Audio send failed: %v", err)
			}
		}
	}
}

// flushInbound forwards frames accepted before the terminal trigger so the
// model hears everything the caller said before hanging up. Stops at the
// first send failure; malformed frames are simply skipped.
func (o *Orchestrator) flushInbound(ctx context.Context, transcoder *audio.Transcoder) {
	for {
		select {
		case item := <-o.inbound:
			if !item.hasMedia {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(item.media)
			if err != nil {
				continue
			}
			out, err := transcoder.Convert(audio.NewFrame(data, audio.FormatTelephony, audio.DirectionInbound))
			if err != nil {
				continue
			}
			if o.currentStream().SendAudio(ctx, out.Data) != nil {
				return
			}
			metrics.AudioFrames.WithLabelValues(audio.DirectionInbound.String()).Inc()
		default:
			return
		}
	}
}

// backendLoop consumes model events: audio to the leg, tool calls to the
// router, transcripts to the sink. Tool and transcript handling never block
// audio; dispatch is asynchronous and the sink sheds on overflow.
func (o *Orchestrator) backendLoop(ctx context.Context, router *tools.Router) {
	transcoder, err := audio.NewTranscoder(audio.FormatBackendOut, audio.FormatTelephony)
	if err != nil {
		o.terminate(call.StateErrored, "transcoder_init_failed")
		return
	}

	toolCtx := tools.WithSessionControl(ctx, o)
	reconnected := false

	events := o.currentStream().Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case ev, ok := <-events:
			if !ok {
				o.terminate(call.StateErrored, "backend_stream_ended")
				return
			}

			switch ev.Kind {
			case backend.EventAudio:
				o.deliverAudio(ctx, transcoder, ev.Audio)

			case backend.EventToolCall:
				router.Dispatch(toolCtx, *ev.ToolCall)

			case backend.EventTranscript:
				o.publishTranscript(ev.Transcript)

			case backend.EventInterrupted:
				// Barge-in: the queued playback and whatever the carrier has
				// buffered are both stale now.
				o.dropQueuedPlayback()
				if err := o.leg.SendClear(); err != nil {
					o.log.Debugf("Clear failed: %v", err)
				}

			case backend.EventTurnComplete:
				if pending, ok := o.pendingEnd.Load().(endState); ok {
					o.terminate(pending.state, pending.reason)
					return
				}

			case backend.EventClosed:
				o.terminate(call.StateErrored, "backend_closed")
				return

			case backend.EventError:
				if ev.Retryable && !reconnected {
					reconnected = true
					if next := o.reconnect(ctx); next != nil {
						events = next.Events()
						continue
					}
				}
				o.log.Errorf("Backend stream failed: %v", ev.Err)
				o.terminate(call.StateErrored, "backend_error")
				return
			}
		}
	}
}

// deliverAudio transcodes one model chunk and queues it for playback. The
// buffer absorbs model bursts so event consumption stays ahead of the
// carrier's real-time write pace.
func (o *Orchestrator) deliverAudio(ctx context.Context, transcoder *audio.Transcoder, pcm []byte) {
	frame := audio.NewFrame(pcm, audio.FormatBackendOut, audio.DirectionOutbound)
	out, err := transcoder.Convert(frame)
	if err != nil {
		metrics.TranscodeFailures.WithLabelValues(audio.DirectionOutbound.String()).Inc()
		o.log.Warnf("Dropped malformed outbound frame: %v", err)
		return
	}
	metrics.AudioFrames.WithLabelValues(audio.DirectionOutbound.String()).Inc()

	select {
	case o.outbound <- out.Data:
	case <-o.quit:
	case <-ctx.Done():
	}
}

// outboundPump plays queued model audio to the caller leg.
func (o *Orchestrator) outboundPump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case payload := <-o.outbound:
			if err := o.leg.SendMedia(payload); err != nil {
				o.log.Debugf("Media write failed: %v", err)
			}
		}
	}
}

// dropQueuedPlayback empties the playback buffer so a canceled turn is not
// spoken after the caller barged in.
func (o *Orchestrator) dropQueuedPlayback() {
	for {
		select {
		case <-o.outbound:
		default:
			return
		}
	}
}

func (o *Orchestrator) publishTranscript(tr *backend.Transcript) {
	ts := tr.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	o.sink.Publish(transcript.Entry{
		SessionID:  o.sess.ID,
		ExternalID: o.sess.ExternalID,
		Domain:     o.sess.Domain,
		Role:       tr.Role,
		Text:       tr.Text,
		Final:      tr.Final,
		Utterance:  tr.UtteranceID,
		Timestamp:  ts,
	})
	metrics.TranscriptEvents.WithLabelValues(tr.Role, fmt.Sprintf("%t", tr.Final)).Inc()
	if tr.Final {
		o.transcriptLines.Add(1)
	}
}

// reconnect attempts the single mid-call reconnect allowed for transport
// faults. The caller hears silence for the duration; audio sent meanwhile is
// lost with the old stream.
func (o *Orchestrator) reconnect(ctx context.Context) backend.Stream {
	o.log.Warn("Backend stream lost, attempting one reconnect")
	o.currentStream().Close()

	stream, err := o.connect(ctx)
	if err != nil {
		metrics.BackendReconnects.WithLabelValues("failed").Inc()
		o.log.Errorf("Backend reconnect failed: %v", err)
		return nil
	}
	metrics.BackendReconnects.WithLabelValues("success").Inc()

	o.mu.Lock()
	o.stream = stream
	o.mu.Unlock()
	return stream
}

func (o *Orchestrator) toolResultLoop(ctx context.Context, router *tools.Router) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.quit:
			return
		case res, ok := <-router.Results():
			if !ok {
				return
			}
			metrics.RecordToolExecution(res.Name, res.Elapsed, res.Err)
			if err := o.currentStream().SendToolResult(ctx, res.Response()); err != nil {
				if ctx.Err() != nil {
					return
				}
				// A closed stream mid-reconnect loses this result; the model
				// reprompts the tool if it still needs the answer.
				o.log.Warnf("Tool result send failed: id=%s err=%v", res.ID, err)
			}
		}
	}
}

func (o *Orchestrator) currentStream() backend.Stream {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stream
}

// terminate records the first terminal decision and wakes Run. Later calls
// lose; the session's outcome is whatever fault or hangup came first.
func (o *Orchestrator) terminate(state call.State, reason string) {
	o.endOnce.Do(func() {
		o.mu.Lock()
		o.end = endState{state: state, reason: reason}
		o.mu.Unlock()
		close(o.quit)
	})
}

// finalize drains and releases everything: Draining first, then the stream,
// the router, the leg, and last the summary hook. Bounded by the drain
// timeout. The run context stays alive until the pumps have drained so the
// inbound flush can still reach the stream.
func (o *Orchestrator) finalize(ctx context.Context, cancel context.CancelFunc, router *tools.Router, wg *sync.WaitGroup) {
	o.terminate(call.StateErrored, "finalize_without_cause")

	o.mu.RLock()
	end := o.end
	o.mu.RUnlock()

	_ = o.transition(call.StateDraining)

	if wg != nil {
		drained := make(chan struct{})
		go func() {
			wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(o.cfg.DrainTimeout):
			o.log.Warn("Drain timeout expired with pumps still running")
		}
	}
	if cancel != nil {
		cancel()
	}

	if s := o.currentStream(); s != nil {
		s.Close()
	}
	if router != nil {
		router.Close()
		for range router.Results() {
			// Late results have nowhere to go.
		}
	}

	if err := o.leg.SendStop(end.reason); err != nil {
		o.log.Debugf("Stop notify failed: %v", err)
	}
	if err := o.leg.Close(); err != nil {
		o.log.Debugf("Leg close failed: %v", err)
	}

	_ = o.transition(end.state)

	o.mu.RLock()
	started := o.startedAt
	state := o.state
	o.mu.RUnlock()

	sum := call.Summary{
		SessionID:       o.sess.ID,
		ExternalID:      o.sess.ExternalID,
		State:           state,
		Reason:          end.reason,
		Duration:        time.Since(started),
		TranscriptLines: int(o.transcriptLines.Load()),
		StartedAt:       started,
		EndedAt:         time.Now(),
	}
	metrics.RecordSessionEnd(string(state), end.reason, sum.Duration)
	o.log.Infof("Session finished: state=%s reason=%s duration=%s lines=%d",
		state, end.reason, sum.Duration.Round(time.Millisecond), sum.TranscriptLines)

	if o.hook != nil {
		o.hook(ctx, sum)
	}
}

// transition applies one state change through the central validator.
func (o *Orchestrator) transition(to call.State) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == to {
		return nil
	}
	if err := call.ValidateTransition(o.state, to); err != nil {
		o.log.Errorf("Rejected state transition %s -> %s", o.state, to)
		return err
	}
	o.log.Debugf("State %s -> %s", o.state, to)
	o.state = to
	return nil
}
