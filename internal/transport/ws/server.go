// Package ws serves the command socket: one HELLO, then any number of CMD
// messages answered in order with CMD_RESULT.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/rules"
	"d20rules.io/internal/sim/session"
)

type Server struct {
	sess *session.Session
	log  logrus.FieldLogger

	upgrader websocket.Upgrader
}

func NewServer(sess *session.Session, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		sess: sess,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello, out, ok := s.handshake(conn)
		if !ok {
			return
		}
		l := s.log.WithField("client", hello.ClientName)
		l.Debug("command client joined")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. Results are queued in arrival order; a client that
		// stops reading blocks its own reader, never the session.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			res := s.handle(msg)
			b, err := json.Marshal(res)
			if err != nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}
		cancel()
		<-done
		l.Debug("command client left")
	}
}

func (s *Server) handle(msg []byte) protocol.CmdResultMsg {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return badRequest("", "malformed message")
	}
	if base.Type != protocol.TypeCmd {
		return badRequest("", "expected CMD, got "+base.Type)
	}
	var cmd protocol.CmdMsg
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return badRequest("", err.Error())
	}
	if cmd.ProtocolVersion != "" && cmd.ProtocolVersion != protocol.Version {
		return badRequest(cmd.ID, "bad protocol_version")
	}
	return s.sess.Exec(cmd)
}

func badRequest(id, msg string) protocol.CmdResultMsg {
	return protocol.CmdResultMsg{
		Type:  protocol.TypeCmdResult,
		ID:    id,
		Error: &protocol.ErrorBody{Code: protocol.ErrBadRequest, Message: msg},
	}
}

func (s *Server) handshake(conn *websocket.Conn) (protocol.HelloMsg, chan []byte, bool) {
	var hello protocol.HelloMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return hello, nil, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return hello, nil, false
	}
	if err := json.Unmarshal(msg, &hello); err != nil {
		return hello, nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return hello, nil, false
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if maxQ > 64 {
		maxQ = 64
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.sess.ID(),
	}
	_ = s.sess.Do(func(e *rules.Engine) error {
		welcome.Blueprints = e.Blueprints().Len()
		welcome.Catalogs = e.Catalogs().Digests()
		return nil
	})
	if err := writeJSON(conn, welcome); err != nil {
		return hello, nil, false
	}
	return hello, make(chan []byte, maxQ), true
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
