package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connectai/pkg/errors"
)

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage([]byte("not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProtocol))

	_, err = ParseMessage([]byte(`{"media":{"payload":"AAAA"}}`))
	require.Error(t, err, "an envelope without an event name is unusable")
}

func TestParseStartWithParameterList(t *testing.T) {
	raw := `{
		"event": "start",
		"start": {
			"streamId": "stream-77",
			"customParameters": [
				{"name": "AccountDomain", "value": "Acme.Example"},
				{"name": "NmsDnis", "value": "15559870000"},
				{"name": "NmsAni", "value": "15551230000"},
				{"name": "OrigCallID", "value": "orig-1"},
				{"name": "TermCallID", "value": "term-1"}
			]
		}
	}`
	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	details := parseStart(msg, "fallback")
	assert.Equal(t, "acme.example", details.Headers.AccountDomain, "domains are compared lowercase")
	assert.Equal(t, "15559870000", details.Headers.Dialed)
	assert.Equal(t, "15551230000", details.Headers.CallerID)
	assert.Equal(t, "orig-1", details.ExternalID, "originating call id wins")
	assert.Equal(t, "stream-77", details.StreamID)
}

func TestParseStartWithParameterObject(t *testing.T) {
	raw := `{
		"event": "start",
		"start": {
			"parameters": {"AccountDomain": "acme.example", "TermCallID": "term-9", "NmsAni": 15551230000}
		}
	}`
	msg, err := ParseMessage([]byte(raw))
	require.NoError(t, err)

	details := parseStart(msg, "fallback")
	assert.Equal(t, "term-9", details.ExternalID, "terminating id used when no originating id")
	assert.Equal(t, "15551230000", details.Headers.CallerID, "numeric values coerce to strings")
}

func TestParseStartExternalIDFallbacks(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"event":"start","streamId":"top-level-stream"}`))
	require.NoError(t, err)
	details := parseStart(msg, "session-id")
	assert.Equal(t, "top-level-stream", details.ExternalID)

	msg, err = ParseMessage([]byte(`{"event":"start"}`))
	require.NoError(t, err)
	details = parseStart(msg, "session-id")
	assert.Equal(t, "session-id", details.ExternalID, "session id is the last resort")
}

func TestParseMediaAndDTMFAndStop(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"event":"media","media":{"payload":"//8A","encoding":"ulaw"}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Media)
	assert.Equal(t, "//8A", msg.Media.Payload)

	msg, err = ParseMessage([]byte(`{"event":"dtmf","dtmf":{"digit":"#"}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.DTMF)
	assert.Equal(t, "#", msg.DTMF.Digit)

	msg, err = ParseMessage([]byte(`{"event":"stop","stop":{"reason":"hangup"}}`))
	require.NoError(t, err)
	require.NotNil(t, msg.Stop)
	assert.Equal(t, "hangup", msg.Stop.Reason)
}

type fakeConn struct {
	frames [][]byte
	closed bool
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func (f *fakeConn) last(t *testing.T) map[string]interface{} {
	t.Helper()
	require.NotEmpty(t, f.frames)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(f.frames[len(f.frames)-1], &out))
	return out
}

func TestLegEnvelopes(t *testing.T) {
	conn := &fakeConn{}
	leg := NewLeg(conn, "stream-1", time.Second)

	require.NoError(t, leg.SendMedia([]byte{0xFF, 0xFF}))
	media := conn.last(t)
	assert.Equal(t, "media", media["event"])
	payload := media["media"].(map[string]interface{})
	assert.Equal(t, "//8=", payload["payload"])
	assert.Equal(t, "ulaw", payload["encoding"])

	require.NoError(t, leg.SendClear())
	clear := conn.last(t)
	assert.Equal(t, "clear", clear["event"])
	assert.Equal(t, "stream-1", clear["streamId"])

	require.NoError(t, leg.SendStop("done"))
	stop := conn.last(t)
	assert.Equal(t, "stop", stop["event"])
	assert.Equal(t, "done", stop["reason"])

	require.NoError(t, leg.SendError("no agent"))
	errMsg := conn.last(t)
	assert.Equal(t, "error", errMsg["event"])
}

func TestLegClosedRejectsWrites(t *testing.T) {
	conn := &fakeConn{}
	leg := NewLeg(conn, "", time.Second)

	require.NoError(t, leg.Close())
	assert.True(t, conn.closed)
	require.NoError(t, leg.Close(), "double close is harmless")

	err := leg.SendMedia([]byte{0x00})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSessionClosed))
}
