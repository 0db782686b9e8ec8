package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rlpredict/rlpredict/pkg/core"
	"github.com/rlpredict/rlpredict/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams session data over WebSocket to a collector.
// It implements storage.Backend but not storage.Uploadable.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend. A nil logger uses slog.Default.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger.With("backend", "websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// StartSession sends start_session and waits for the server ack. The
// message is replayed after every reconnect until EndSession.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.mu.Lock()
	b.conn.startMsg = data
	b.conn.mu.Unlock()

	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// EndSession sends end_session and waits for the server ack.
func (b *Backend) EndSession() error {
	data, err := marshalEnvelope(streaming.TypeEndSession, nil)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, ackTimeout)

	b.conn.mu.Lock()
	b.conn.startMsg = nil
	b.conn.mu.Unlock()

	return err
}

func (b *Backend) RecordFieldInfo(info *core.FieldInfo) error {
	return b.sendEnvelope(streaming.TypeFieldInfo, info)
}

func (b *Backend) RecordBallState(s *core.BallState) error {
	return b.sendEnvelope(streaming.TypeBallState, s)
}

func (b *Backend) RecordCarState(s *core.CarState) error {
	return b.sendEnvelope(streaming.TypeCarState, s)
}

func (b *Backend) RecordPrediction(p *core.Prediction) error {
	return b.sendEnvelope(streaming.TypePrediction, p)
}

func (b *Backend) RecordDrift(d *core.DriftSample) error {
	return b.sendEnvelope(streaming.TypeDrift, d)
}

// QueueLengths reports messages waiting for the writer and messages dropped
// because the queue was full.
func (b *Backend) QueueLengths() map[string]int {
	return map[string]int{
		"send":    len(b.conn.sendCh),
		"dropped": int(b.conn.dropped.Load()),
	}
}
