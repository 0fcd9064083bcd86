package push

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kumoctl/internal/logger"
)

// Send/receive timing configuration and message size limits.
const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 16 // 64 KB; device updates are small JSON objects
)

// envelope frames every message on the realtime channel.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outEnvelope is the write-side frame; Data is encoded on send.
type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Socket implements Transport over a websocket connection to the
// realtime endpoint. The reader goroutine feeds the registered
// EventHandler; a ping loop keeps the connection alive.
type Socket struct {
	url string
	log *logger.Logger

	mu      sync.Mutex // guards conn and writes
	conn    *websocket.Conn
	handler EventHandler
	done    chan struct{}
}

// NewSocket returns an unconnected Socket for the given endpoint URL.
// http(s) schemes are rewritten to ws(s).
func NewSocket(rawURL string, log *logger.Logger) *Socket {
	return &Socket{url: toWebsocketURL(rawURL), log: log}
}

// OnEvent registers the single inbound event handler. Must be called
// before Connect.
func (s *Socket) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Connect dials the realtime endpoint, presenting the access token as
// a bearer credential, and starts the read and ping loops.
func (s *Socket) Connect(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.conn = conn
	s.done = make(chan struct{})
	go s.readLoop(conn, s.done)
	go s.pingLoop(conn, s.done)
	return nil
}

// Subscribe registers interest in updates for one device serial.
func (s *Socket) Subscribe(serial string) error {
	return s.Emit(eventSubscribe, serial)
}

// Emit writes one event frame with a bounded write deadline. A write
// failure is fatal to gorilla's write path, so the conn is dropped on
// the spot; the next Connect re-dials.
func (s *Socket) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return websocket.ErrCloseSent
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := s.conn.WriteJSON(outEnvelope{Event: event, Data: payload})
	if err != nil {
		close(s.done)
		_ = s.conn.Close()
		s.conn = nil
	}
	return err
}

// Disconnect closes the connection and stops the loops.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	close(s.done)
	_ = s.conn.Close()
	s.conn = nil
}

// readLoop decodes inbound frames and hands them to the handler until
// the connection closes. Handler work stays off the write path.
func (s *Socket) readLoop(conn *websocket.Conn, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// deliberate shutdown
			default:
				if s.log != nil {
					s.log.Debugw("push read closed", "err", err)
				}
				s.markClosed(conn)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			if s.log != nil {
				s.log.Debugw("push frame not parseable", "err", err)
			}
			continue
		}
		var payload map[string]any
		if len(env.Data) > 0 {
			_ = json.Unmarshal(env.Data, &payload)
		}
		if s.handler != nil {
			s.handler(env.Event, payload)
		}
	}
}

// pingLoop keeps the connection alive until done closes.
func (s *Socket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			active := s.conn == conn
			if active {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					if s.log != nil {
						s.log.Debugw("push ping failed", "err", err)
					}
				}
			}
			s.mu.Unlock()
			if !active {
				return
			}
		}
	}
}

// markClosed clears conn if it is still the one the loop was serving,
// so a later Connect can re-establish the channel.
func (s *Socket) markClosed(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		_ = s.conn.Close()
		s.conn = nil
		close(s.done)
	}
}

// toWebsocketURL maps https-> wss and http -> ws, leaving ws schemes as
// given.
func toWebsocketURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "https://"):
		return "wss://" + strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		return "ws://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
