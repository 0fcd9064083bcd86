package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kumoctl/internal/logger"
)

var upgrader = websocket.Upgrader{}

// wsServer upgrades one connection, echoes received envelopes to the
// frames channel and pushes anything sent on the send channel.
type wsServer struct {
	srv    *httptest.Server
	frames chan envelope
	send   chan outEnvelope

	mu         sync.Mutex
	authHeader string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{
		frames: make(chan envelope, 16),
		send:   make(chan outEnvelope, 16),
	}
	ws.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.authHeader = r.Header.Get("Authorization")
		ws.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		go func() {
			for out := range ws.send {
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			}
		}()
		for {
			var env envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ws.frames <- env
		}
	}))
	t.Cleanup(ws.srv.Close)
	return ws
}

func (ws *wsServer) auth() string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.authHeader
}

func (ws *wsServer) nextFrame(t *testing.T) envelope {
	t.Helper()
	select {
	case env := <-ws.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame arrived")
		return envelope{}
	}
}

func TestSocket_ConnectPresentsBearerToken(t *testing.T) {
	ws := newWSServer(t)
	s := NewSocket(ws.srv.URL, logger.Get("error"))
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "tok123"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if got := ws.auth(); got != "Bearer tok123" {
		t.Fatalf("Authorization = %q", got)
	}
}

func TestSocket_SubscribeAndEmitFrames(t *testing.T) {
	ws := newWSServer(t)
	s := NewSocket(ws.srv.URL, logger.Get("error"))
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := s.Subscribe("SER1"); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	env := ws.nextFrame(t)
	if env.Event != eventSubscribe {
		t.Fatalf("event = %q", env.Event)
	}
	var serial string
	if err := json.Unmarshal(env.Data, &serial); err != nil || serial != "SER1" {
		t.Fatalf("data = %s (%v)", env.Data, err)
	}

	req := adapterRequest{DeviceSerial: "SER1", RequestType: "iuStatus", MessageID: "m-1"}
	if err := s.Emit(eventAdapterRequest, req); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	env = ws.nextFrame(t)
	if env.Event != eventAdapterRequest {
		t.Fatalf("event = %q", env.Event)
	}
	var decoded adapterRequest
	if err := json.Unmarshal(env.Data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != req {
		t.Fatalf("request = %+v, want %+v", decoded, req)
	}
}

func TestSocket_DeliversInboundEvents(t *testing.T) {
	ws := newWSServer(t)
	s := NewSocket(ws.srv.URL, logger.Get("error"))
	defer s.Disconnect()

	received := make(chan map[string]any, 1)
	s.OnEvent(func(event string, data map[string]any) {
		if event == eventDeviceUpdate {
			received <- data
		}
	})
	if err := s.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ws.send <- outEnvelope{
		Event: eventDeviceUpdate,
		Data:  map[string]any{"deviceSerial": "SER1", "roomTemp": 21.0},
	}

	select {
	case data := <-received:
		if data["deviceSerial"] != "SER1" || data["roomTemp"] != 21.0 {
			t.Fatalf("data = %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("inbound event never reached the handler")
	}
}

func TestSocket_EmitWithoutConnectionFails(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:0", logger.Get("error"))
	if err := s.Emit(eventSubscribe, "SER1"); err == nil {
		t.Fatal("Emit succeeded with no connection")
	}
}

func TestSocket_ConnectIsIdempotent(t *testing.T) {
	ws := newWSServer(t)
	s := NewSocket(ws.srv.URL, logger.Get("error"))
	defer s.Disconnect()

	if err := s.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Connect(context.Background(), "tok"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
}

func TestToWebsocketURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"https://socket-prod.kumocloud.com", "wss://socket-prod.kumocloud.com"},
		{"http://localhost:8080", "ws://localhost:8080"},
		{"wss://already.example.com", "wss://already.example.com"},
	}
	for _, tc := range cases {
		if got := toWebsocketURL(tc.in); got != tc.want {
			t.Errorf("toWebsocketURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// A dead channel must not be sticky: once the resolver marks it down,
// the next solicitation dials a fresh connection instead of reusing
// the stale one.
func TestResolver_RedialsAfterChannelMarkedDown(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		dials++
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	s := NewSocket(srv.URL, logger.Get("error"))
	r := NewResolver(s, staticToken("tok"), logger.Get("error"))
	defer r.Close()

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", 10*time.Millisecond); got != nil {
		t.Fatalf("first refresh = %v, want nil on timeout", got)
	}
	r.markDisconnected() // what a failed emit does

	if got := r.ForceDeviceRefresh(context.Background(), "SER1", 10*time.Millisecond); got != nil {
		t.Fatalf("second refresh = %v, want nil on timeout", got)
	}

	mu.Lock()
	got := dials
	mu.Unlock()
	if got != 2 {
		t.Fatalf("dials = %d, want a fresh dial after the channel went down", got)
	}
}
