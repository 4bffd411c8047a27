// Package stt streams PCM audio to a websocket speech recognizer and yields
// incremental transcription deltas.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientClosed is returned by Send after Close has ended the stream.
// Senders racing a clean shutdown treat it as end-of-stream, not a failure.
var ErrClientClosed = errors.New("stt client is closed")

// Delta is one incremental piece of recognized text.
type Delta struct {
	Text  string
	Final bool
}

// Transcriber streams audio in and recognition deltas out.
type Transcriber interface {
	Send(ctx context.Context, pcm []byte) error
	Deltas() <-chan Delta
	Close(ctx context.Context) error
}

// Client is a websocket Transcriber speaking the Vosk server protocol:
// binary PCM frames in, JSON partial/final hypotheses out.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	deltas  chan Delta
	readErr chan error

	writeMu sync.Mutex
	closed  bool
}

// serverMessage uses pointers so silence finals ({"text": ""}) stay
// distinguishable from partial updates.
type serverMessage struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

// Dial connects to the recognizer endpoint and sends the sample-rate config
// frame before any audio.
func Dial(ctx context.Context, endpoint string, sampleRate int, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial stt endpoint %s: %w", endpoint, err)
	}

	configFrame := fmt.Sprintf(`{"config": {"sample_rate": %d}}`, sampleRate)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(configFrame)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send stt config: %w", err)
	}

	client := &Client{
		conn:    conn,
		logger:  logger,
		deltas:  make(chan Delta, 64),
		readErr: make(chan error, 1),
	}
	go client.readLoop()
	return client, nil
}

// Send writes one PCM chunk as a binary frame.
func (c *Client) Send(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return ErrClientClosed
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set stt write deadline: %w", err)
		}
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return fmt.Errorf("send stt audio: %w", err)
	}
	return nil
}

// Deltas returns the incremental recognition stream. The channel closes when
// the server finishes or the connection drops.
func (c *Client) Deltas() <-chan Delta {
	return c.deltas
}

// Close sends the end-of-stream marker and waits briefly for the final
// hypothesis before tearing the connection down.
func (c *Client) Close(ctx context.Context) error {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return nil
	}
	c.closed = true
	writeErr := c.conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`))
	c.writeMu.Unlock()

	if writeErr == nil {
		select {
		case <-c.readErr:
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}

	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.deltas)
	defer func() { c.readErr <- nil }()

	var diff differ
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("stt connection closed unexpectedly", "error", err)
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn("discarding malformed stt message", "error", err)
			continue
		}

		if msg.Text != nil {
			delta, _ := diff.onFinal(*msg.Text)
			c.deltas <- Delta{Text: delta, Final: true}
			continue
		}
		if msg.Partial != nil {
			if delta, ok := diff.onPartial(*msg.Partial); ok {
				c.deltas <- Delta{Text: delta}
			}
		}
	}
}
