package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"darkbet-backend/internal/events"
)

// Stream is a live feed of protocol events from the API WebSocket
type Stream struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	events chan events.Event
	done   chan struct{}
	err    error
	closed bool
}

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Subscribe opens an event stream. marketID 0 follows every market.
func (c *Client) Subscribe(ctx context.Context, marketID uint64) (*Stream, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/ws"
	if marketID != 0 {
		u.RawQuery = url.Values{"market": {strconv.FormatUint(marketID, 10)}}.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Stream{
		conn:   conn,
		events: make(chan events.Event, 64),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events delivers events until the stream ends; the channel is then closed
func (s *Stream) Events() <-chan events.Event { return s.events }

// Err returns the error that ended the stream, if any
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// readLoop reads messages from the WebSocket
func (s *Stream) readLoop() {
	defer close(s.events)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			if !s.closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			s.mu.Unlock()
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "event" {
			// welcome and unknown messages carry no event
			continue
		}
		var ev events.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Close closes the connection
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return s.conn.Close()
}
