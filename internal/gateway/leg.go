package gateway

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"connectai/pkg/errors"
)

// wsConn is the subset of the gorilla connection the leg writes through.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Leg is the caller side of one call. It serializes writes onto the shared
// WebSocket; the gateway's read loop never goes through here.
type Leg struct {
	mu           sync.Mutex
	conn         wsConn
	streamID     string
	writeTimeout time.Duration
	closed       bool
}

// NewLeg wraps an upgraded connection.
func NewLeg(conn wsConn, streamID string, writeTimeout time.Duration) *Leg {
	return &Leg{
		conn:         conn,
		streamID:     streamID,
		writeTimeout: writeTimeout,
	}
}

// SetStreamID records the carrier's stream id once the start event names it.
func (l *Leg) SetStreamID(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streamID = id
}

// SendMedia writes one mu-law payload to the caller.
func (l *Leg) SendMedia(payload []byte) error {
	return l.write(mediaEnvelope(base64.StdEncoding.EncodeToString(payload)))
}

// SendClear tells the carrier to discard buffered playback.
func (l *Leg) SendClear() error {
	l.mu.Lock()
	id := l.streamID
	l.mu.Unlock()
	return l.write(clearEnvelope(id))
}

// SendStop tells the carrier the stream is over.
func (l *Leg) SendStop(reason string) error {
	return l.write(stopEnvelope(reason))
}

// SendError reports a setup failure before tearing the stream down.
func (l *Leg) SendError(message string) error {
	return l.write(errorEnvelope(message))
}

// Close closes the connection. Further sends fail with ErrSessionClosed.
func (l *Leg) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.conn.Close()
}

func (l *Leg) write(envelope interface{}) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, "failed to encode envelope")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errors.ErrSessionClosed
	}
	if err := l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout)); err != nil {
		return errors.Wrapf(errors.ErrConnection, "set write deadline: %v", err)
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(errors.ErrConnection, "write: %v", err)
	}
	return nil
}
