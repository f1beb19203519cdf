// Package gateway terminates telephony WebSocket streams and hands each call
// to its session orchestrator. The wire protocol is the NetSapiens stream
// format: JSON envelopes carrying base64 mu-law audio.
package gateway

import (
	"encoding/json"
	"strings"

	"connectai/internal/domain/call"
	"connectai/pkg/errors"
)

// Inbound event names.
const (
	EventStart = "start"
	EventMedia = "media"
	EventStop  = "stop"
	EventDTMF  = "dtmf"
)

// Custom parameter names the carrier attaches to the start event.
const (
	paramAccountDomain = "AccountDomain"
	paramDialedNumber  = "NmsDnis"
	paramCallerID      = "NmsAni"
	paramOrigCallID    = "OrigCallID"
	paramTermCallID    = "TermCallID"
)

// Message is one inbound envelope. Only the section matching Event is set.
type Message struct {
	Event    string          `json:"event"`
	StreamID string          `json:"streamId,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Start    *StartInfo      `json:"start,omitempty"`
	Media    *MediaInfo      `json:"media,omitempty"`
	Stop     *StopInfo       `json:"stop,omitempty"`
	DTMF     *DTMFInfo       `json:"dtmf,omitempty"`
	Params   json.RawMessage `json:"customParameters,omitempty"`
}

// StartInfo announces a new call.
type StartInfo struct {
	StreamID  string          `json:"streamId,omitempty"`
	Params    json.RawMessage `json:"customParameters,omitempty"`
	AltParams json.RawMessage `json:"parameters,omitempty"`
}

// MediaInfo carries one base64 mu-law frame.
type MediaInfo struct {
	Payload  string `json:"payload"`
	Encoding string `json:"encoding,omitempty"`
}

// StopInfo ends a call.
type StopInfo struct {
	StreamID string `json:"streamId,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// DTMFInfo reports a keypad press.
type DTMFInfo struct {
	Digit string `json:"digit"`
}

// ParseMessage decodes one envelope. Unknown events pass through with their
// name intact so the handler can log and skip them.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, errors.Wrapf(errors.ErrProtocol, "malformed envelope: %v", err)
	}
	if msg.Event == "" {
		return Message{}, errors.Wrap(errors.ErrProtocol, "envelope has no event")
	}
	return msg, nil
}

// customParams decodes the carrier's parameter block, which arrives either as
// a list of {name, value} pairs or as a plain object.
func customParams(raw json.RawMessage) map[string]string {
	out := make(map[string]string)
	if len(raw) == 0 {
		return out
	}

	var pairs []struct {
		Name  string      `json:"name"`
		Value interface{} `json:"value"`
	}
	if err := json.Unmarshal(raw, &pairs); err == nil {
		for _, p := range pairs {
			if p.Name != "" {
				out[p.Name] = asString(p.Value)
			}
		}
		return out
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			out[k] = asString(v)
		}
	}
	return out
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return strings.Trim(string(b), `"`)
	}
}

// StartDetails is everything the gateway learns from a start event.
type StartDetails struct {
	Headers    call.RouteHeaders
	ExternalID string
	StreamID   string
}

// parseStart resolves routing headers and the external call id. The external
// id preference order is the originating call id, then the terminating one,
// then the stream id, then the fallback.
func parseStart(msg Message, fallback string) StartDetails {
	var raw json.RawMessage
	streamID := msg.StreamID
	if msg.Start != nil {
		raw = msg.Start.Params
		if len(raw) == 0 {
			raw = msg.Start.AltParams
		}
		if msg.Start.StreamID != "" {
			streamID = msg.Start.StreamID
		}
	}
	if len(raw) == 0 {
		raw = msg.Params
	}
	params := customParams(raw)

	externalID := params[paramOrigCallID]
	if externalID == "" {
		externalID = params[paramTermCallID]
	}
	if externalID == "" {
		externalID = streamID
	}
	if externalID == "" {
		externalID = fallback
	}

	return StartDetails{
		Headers: call.RouteHeaders{
			AccountDomain: strings.ToLower(params[paramAccountDomain]),
			Dialed:        params[paramDialedNumber],
			CallerID:      params[paramCallerID],
		},
		ExternalID: externalID,
		StreamID:   streamID,
	}
}

// Outbound envelope constructors.

func mediaEnvelope(payload string) interface{} {
	return map[string]interface{}{
		"event": EventMedia,
		"media": map[string]interface{}{
			"payload":  payload,
			"encoding": "ulaw",
		},
	}
}

func clearEnvelope(streamID string) interface{} {
	return map[string]interface{}{
		"event":    "clear",
		"streamId": streamID,
	}
}

func stopEnvelope(reason string) interface{} {
	out := map[string]interface{}{"event": EventStop}
	if reason != "" {
		out["reason"] = reason
	}
	return out
}

func errorEnvelope(message string) interface{} {
	return map[string]interface{}{
		"event": "error",
		"error": message,
	}
}
