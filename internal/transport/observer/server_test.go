package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/rules"
)

func newEngine(t *testing.T) *rules.Engine {
	t.Helper()
	reg, err := blueprints.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := blueprints.LoadDir(reg, "../../sim/blueprints/testdata/pack"); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return rules.New(reg, catalogs.MustDefault(), rules.WithSessionID("feed"))
}

func dial(t *testing.T, srv *httptest.Server, sub protocol.SubscribeMsg) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return conn
}

func waitClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, s.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) rules.EventRecord {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.EventMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != protocol.TypeEvent {
		t.Fatalf("message type %q", msg.Type)
	}
	var rec rules.EventRecord
	if err := json.Unmarshal(msg.Event, &rec); err != nil {
		t.Fatalf("event body: %v", err)
	}
	return rec
}

func TestFeed_DeliversInOrderWithFilter(t *testing.T) {
	obs := NewServer(Config{Buffer: 64}, nil)
	srv := httptest.NewServer(obs.WSHandler())
	defer srv.Close()

	eng := newEngine(t)
	eng.Subscribe(obs.OnEvent)

	all := dial(t, srv, protocol.SubscribeMsg{Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version})
	equips := dial(t, srv, protocol.SubscribeMsg{
		Type: protocol.TypeSubscribe, ProtocolVersion: protocol.Version,
		Types: []string{string(rules.EventEntityEquip)},
	})
	waitClients(t, obs, 2)

	if _, err := eng.CreateEntity("npc-bandit"); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	want := []rules.EventType{rules.EventEntityCreated, rules.EventEntityCreated, rules.EventEntityEquip, rules.EventEntityEquip, rules.EventEntityCreated}
	for i, typ := range want {
		if got := readEvent(t, all); got.Type != typ || got.Seq != uint64(i+1) || got.Session != "feed" {
			t.Fatalf("event %d: %+v", i, got)
		}
	}
	for i := 0; i < 2; i++ {
		if got := readEvent(t, equips); got.Type != rules.EventEntityEquip {
			t.Fatalf("filtered feed got %s", got.Type)
		}
	}
}

func TestFeed_RejectsBadHandshake(t *testing.T) {
	obs := NewServer(Config{}, nil)
	srv := httptest.NewServer(obs.WSHandler())
	defer srv.Close()

	conn := dial(t, srv, protocol.SubscribeMsg{Type: "HELLO", ProtocolVersion: protocol.Version})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
	if obs.Clients() != 0 {
		t.Fatalf("rejected client registered")
	}
}

func TestOnEvent_DropsWhenClientIsSlow(t *testing.T) {
	obs := NewServer(Config{Buffer: 1}, nil)
	c := &client{out: make(chan []byte, 1)}
	obs.clients["slow"] = c

	eng := newEngine(t)
	eng.Subscribe(obs.OnEvent)
	if _, err := eng.CreateEntity("wpn-club"); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if _, err := eng.CreateEntity("wpn-club"); err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if len(c.out) != 1 || obs.Dropped() != 1 {
		t.Fatalf("queue=%d dropped=%d", len(c.out), obs.Dropped())
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.4:5000":  false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v", addr, got)
		}
	}
}
