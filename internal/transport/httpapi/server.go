// Package httpapi exposes a session over plain JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/rules"
	"d20rules.io/internal/sim/session"
)

// EventHistory is the read side of the event index.
type EventHistory interface {
	Events(ctx context.Context, session string, limit int) ([]rules.EventRecord, error)
}

type Server struct {
	sess    *session.Session
	history EventHistory
	log     logrus.FieldLogger
}

type Option func(*Server)

func WithHistory(h EventHistory) Option { return func(s *Server) { s.history = h } }

func WithLogger(l logrus.FieldLogger) Option { return func(s *Server) { s.log = l } }

func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{sess: sess, log: logging.Discard()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts every route on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /v1/blueprints", s.listBlueprints)
	mux.HandleFunc("GET /v1/blueprints/{ref}", s.getBlueprint)
	mux.HandleFunc("POST /v1/entities", s.createEntity)
	mux.HandleFunc("GET /v1/entities/{id}", s.entityOp(protocol.OpGet))
	mux.HandleFunc("DELETE /v1/entities/{id}", s.entityOp(protocol.OpDestroy))
	mux.HandleFunc("POST /v1/entities/{id}/equip", s.entityOp(protocol.OpEquip))
	mux.HandleFunc("POST /v1/entities/{id}/unequip", s.entityOp(protocol.OpUnequip))
	mux.HandleFunc("POST /v1/entities/{id}/effects", s.entityOp(protocol.OpAddEffect))
	mux.HandleFunc("POST /v1/entities/{id}/dispel", s.entityOp(protocol.OpDispel))
	mux.HandleFunc("POST /v1/entities/{id}/abilities", s.entityOp(protocol.OpSetAbility))
	mux.HandleFunc("GET /v1/events/history", s.eventHistory)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

func (s *Server) listBlueprints(rw http.ResponseWriter, r *http.Request) {
	var refs []string
	_ = s.sess.Do(func(e *rules.Engine) error {
		refs = e.Blueprints().Refs()
		return nil
	})
	writeJSON(rw, http.StatusOK, protocol.BlueprintListResponse{Refs: refs})
}

func (s *Server) getBlueprint(rw http.ResponseWriter, r *http.Request) {
	ref := r.PathValue("ref")
	var resp protocol.BlueprintResponse
	err := s.sess.Do(func(e *rules.Engine) error {
		bp, err := e.Blueprints().Get(ref)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(bp)
		if err != nil {
			return err
		}
		resp = protocol.BlueprintResponse{Ref: bp.Ref(), Blueprint: raw}
		return nil
	})
	if err != nil {
		s.writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) createEntity(rw http.ResponseWriter, r *http.Request) {
	var req protocol.CreateEntityRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(rw, err)
		return
	}
	s.writeResult(rw, http.StatusCreated, s.sess.Exec(protocol.CmdMsg{Op: protocol.OpCreate, Ref: req.Ref}))
}

// entityOp maps /v1/entities/{id}[/verb] onto a command.
func (s *Server) entityOp(op protocol.Op) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
		if err != nil || id == 0 {
			s.writeError(rw, &protocol.Error{Code: protocol.ErrBadRequest, Message: "bad entity id " + r.PathValue("id")})
			return
		}
		cmd := protocol.CmdMsg{Op: op, EntityID: id}
		switch op {
		case protocol.OpEquip:
			var req protocol.EquipRequest
			if err := decodeBody(r, &req); err != nil {
				s.writeError(rw, err)
				return
			}
			cmd.ItemID, cmd.Slot = req.ItemID, req.Slot
		case protocol.OpUnequip:
			var req protocol.UnequipRequest
			if err := decodeBody(r, &req); err != nil {
				s.writeError(rw, err)
				return
			}
			cmd.Slot = req.Slot
		case protocol.OpAddEffect:
			var spec protocol.EffectSpec
			if err := decodeBody(r, &spec); err != nil {
				s.writeError(rw, err)
				return
			}
			cmd.Effect = &spec
		case protocol.OpSetAbility:
			var req protocol.SetAbilityRequest
			if err := decodeBody(r, &req); err != nil {
				s.writeError(rw, err)
				return
			}
			cmd.Ability, cmd.Value = req.Ability, req.Value
		}
		res := s.sess.Exec(cmd)
		if op == protocol.OpDestroy && res.OK {
			rw.WriteHeader(http.StatusNoContent)
			return
		}
		s.writeResult(rw, http.StatusOK, res)
	}
}

func (s *Server) eventHistory(rw http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(rw, &protocol.Error{Code: protocol.ErrBadRequest, Message: "event index disabled"})
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(rw, &protocol.Error{Code: protocol.ErrBadRequest, Message: "limit must be 1..1000"})
			return
		}
		limit = n
	}
	sid := r.URL.Query().Get("session")
	if sid == "" {
		sid = s.sess.ID()
	}
	evs, err := s.history.Events(r.Context(), sid, limit)
	if err != nil {
		s.writeError(rw, err)
		return
	}
	if evs == nil {
		evs = []rules.EventRecord{}
	}
	writeJSON(rw, http.StatusOK, evs)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &protocol.Error{Code: protocol.ErrBadRequest, Message: "decode body", Cause: err}
	}
	return nil
}

func (s *Server) writeResult(rw http.ResponseWriter, okStatus int, res protocol.CmdResultMsg) {
	if !res.OK {
		s.writeErrorBody(rw, res.Error)
		return
	}
	writeJSON(rw, okStatus, res)
}

func (s *Server) writeError(rw http.ResponseWriter, err error) {
	s.writeErrorBody(rw, protocol.ErrorBodyOf(err))
}

func (s *Server) writeErrorBody(rw http.ResponseWriter, body *protocol.ErrorBody) {
	status := StatusOf(body.Code)
	if status >= 500 {
		s.log.WithField("code", body.Code).Error(body.Message)
	}
	writeJSON(rw, status, struct {
		Error *protocol.ErrorBody `json:"error"`
	}{body})
}

// StatusOf maps an error code to its HTTP status.
func StatusOf(code string) int {
	switch code {
	case protocol.ErrBlueprintNotFound, protocol.ErrEntityNotFound, protocol.ErrNoBlueprintLoaded:
		return http.StatusNotFound
	case protocol.ErrBadRequest, protocol.ErrUnknownSlot, protocol.ErrAbilityUnknown, protocol.ErrBlueprintInvalid:
		return http.StatusBadRequest
	case protocol.ErrEntityTypeMismatch, protocol.ErrSlotIncompatible, protocol.ErrBlueprintCycle,
		protocol.ErrWeaponDataNotFound, protocol.ErrArmorDataNotFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
