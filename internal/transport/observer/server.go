// Package observer streams engine lifecycle events to websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/rules"
)

type Config struct {
	// Per-client queue length; a client that falls further behind loses events.
	Buffer int
	// Accept connections from non-loopback peers.
	AllowRemote bool
}

type Server struct {
	cfg Config
	log logrus.FieldLogger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	out chan []byte

	mu     sync.Mutex
	types  map[string]bool
	entity uint64
}

func (c *client) setFilter(sub protocol.SubscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = nil
	if len(sub.Types) > 0 {
		c.types = make(map[string]bool, len(sub.Types))
		for _, t := range sub.Types {
			c.types[t] = true
		}
	}
	c.entity = sub.EntityID
}

func (c *client) wants(r rules.EventRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.types != nil && !c.types[string(r.Type)] {
		return false
	}
	return c.entity == 0 || uint64(r.EntityID) == c.entity || uint64(r.ItemID) == c.entity
}

func NewServer(cfg Config, logger logrus.FieldLogger) *Server {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:     cfg,
		log:     logger,
		clients: map[string]*client{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// OnEvent has the signature of an engine subscriber. It never blocks.
func (s *Server) OnEvent(ev rules.Event) {
	rec := ev.Record()
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	b, err := json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, Event: raw})
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		if !c.wants(rec) {
			continue
		}
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowRemote && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		c := &client{out: make(chan []byte, s.cfg.Buffer)}
		c.setFilter(sub)
		s.mu.Lock()
		s.clients[sid] = c
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.clients, sid)
			s.mu.Unlock()
		}()
		s.log.WithField("observer", sid).Debug("observer joined")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				c.setFilter(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (protocol.SubscribeMsg, bool) {
	var sub protocol.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
		return sub, false
	}
	return sub, true
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
