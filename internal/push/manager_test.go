package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tradewind/config"
	"tradewind/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// pushServer is a minimal push endpoint: authenticate handshake, then a
// scripted per-connection session.
type pushServer struct {
	srv      *httptest.Server
	conns    atomic.Int64
	script   func(conn *websocket.Conn, attempt int64)
	validTok string
}

func newPushServer(t *testing.T, script func(conn *websocket.Conn, attempt int64)) *pushServer {
	t.Helper()
	ps := &pushServer{script: script, validTok: "good-token"}
	ps.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		attempt := ps.conns.Add(1)

		var env Envelope
		if err := conn.ReadJSON(&env); err != nil || env.Event != domain.EventAuthenticate {
			return
		}
		var creds struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(env.Data, &creds) != nil || creds.Token != ps.validTok {
			conn.WriteJSON(Envelope{Event: "error"})
			return
		}
		conn.WriteJSON(Envelope{Event: domain.EventAuthenticated})
		if ps.script != nil {
			ps.script(conn, attempt)
		}
	}))
	t.Cleanup(ps.srv.Close)
	return ps
}

func (ps *pushServer) config() *config.PushConfig {
	return &config.PushConfig{
		URL:              "ws" + strings.TrimPrefix(ps.srv.URL, "http") + "/ws",
		ReconnectDelay:   50 * time.Millisecond,
		HandshakeTimeout: 2 * time.Second,
		WriteWait:        2 * time.Second,
		PongWait:         5 * time.Second,
	}
}

func holdOpen(conn *websocket.Conn, _ int64) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestConnectAuthenticatesAndDispatches(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn, _ int64) {
		data, _ := json.Marshal(map[string]string{"id": "m1"})
		conn.WriteJSON(Envelope{Event: domain.EventNewMessage, Data: data})
		holdOpen(conn, 0)
	})
	m := NewManager(ps.config(), zap.NewNop())
	defer m.Close()

	received := make(chan json.RawMessage, 1)
	m.On(domain.EventNewMessage, func(data json.RawMessage) { received <- data })

	if err := m.Connect(context.Background(), "good-token"); err != nil {
		t.Fatal(err)
	}
	if got := m.State(); got != StateAuthenticated {
		t.Fatalf("state = %q, want %q", got, StateAuthenticated)
	}
	select {
	case data := <-received:
		if !strings.Contains(string(data), "m1") {
			t.Fatalf("payload = %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("pushed event never dispatched")
	}
}

func TestConnectIsIdempotent(t *testing.T) {
	ps := newPushServer(t, holdOpen)
	m := NewManager(ps.config(), zap.NewNop())
	defer m.Close()

	if err := m.Connect(context.Background(), "good-token"); err != nil {
		t.Fatal(err)
	}
	if err := m.Connect(context.Background(), "good-token"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := ps.conns.Load(); got != 1 {
		t.Fatalf("connections = %d, want 1", got)
	}
}

func TestRejectedHandshakeFailsConnect(t *testing.T) {
	ps := newPushServer(t, holdOpen)
	m := NewManager(ps.config(), zap.NewNop())
	defer m.Close()

	err := m.Connect(context.Background(), "wrong-token")
	if err == nil {
		t.Fatal("expected handshake error")
	}
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}
}

func TestReconnectAfterTransportDrop(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn, attempt int64) {
		if attempt == 1 {
			return // drop the first session right after auth
		}
		holdOpen(conn, attempt)
	})
	m := NewManager(ps.config(), zap.NewNop())
	defer m.Close()

	opened := make(chan struct{}, 8)
	m.OnOpened(func() { opened <- struct{}{} })
	closed := make(chan struct{}, 8)
	m.OnClosed(func() { closed <- struct{}{} })

	if err := m.Connect(context.Background(), "good-token"); err != nil {
		t.Fatal(err)
	}
	<-opened

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("transport drop never reported")
	}
	// One re-armed attempt after the fixed delay, re-authenticated.
	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("no reconnect after drop")
	}
	if got := m.State(); got != StateAuthenticated {
		t.Fatalf("state after reconnect = %q, want %q", got, StateAuthenticated)
	}
	if got := ps.conns.Load(); got != 2 {
		t.Fatalf("connections = %d, want 2", got)
	}
}

func TestCloseStopsReconnect(t *testing.T) {
	ps := newPushServer(t, func(conn *websocket.Conn, _ int64) {
		// drop every session immediately
	})
	m := NewManager(ps.config(), zap.NewNop())

	m.Connect(context.Background(), "good-token")
	m.Close()
	before := ps.conns.Load()
	time.Sleep(200 * time.Millisecond)
	if got := ps.conns.Load(); got != before {
		t.Fatalf("connections grew from %d to %d after Close", before, got)
	}
	if err := m.Connect(context.Background(), "good-token"); err != ErrClosed {
		t.Fatalf("Connect after Close = %v, want ErrClosed", err)
	}
}
