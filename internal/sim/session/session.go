// Package session serializes access to one rules engine and maps wire
// commands onto it. Every transport goes through Exec so HTTP and websocket
// clients see identical results.
package session

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/consts"
	"d20rules.io/internal/sim/rules"
)

type Session struct {
	mu  sync.Mutex
	eng *rules.Engine
	log logrus.FieldLogger
}

func New(eng *rules.Engine, l logrus.FieldLogger) *Session {
	if l == nil {
		l = logging.Discard()
	}
	return &Session{eng: eng, log: l.WithField("session", eng.Session())}
}

func (s *Session) ID() string { return s.eng.Session() }

// Do runs fn with exclusive access to the engine. fn must not keep the
// engine or any *rules.Entity after it returns.
func (s *Session) Do(fn func(*rules.Engine) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.eng)
}

// Exec applies one command and renders its outcome.
func (s *Session) Exec(cmd protocol.CmdMsg) protocol.CmdResultMsg {
	res := protocol.CmdResultMsg{Type: protocol.TypeCmdResult, ID: cmd.ID}
	err := s.Do(func(e *rules.Engine) error { return apply(e, cmd, &res) })
	if err != nil {
		res.OK = false
		res.Entity = nil
		res.Error = protocol.ErrorBodyOf(err)
		s.log.WithFields(logrus.Fields{"op": cmd.Op, "code": res.Error.Code}).Debugf("command failed: %v", err)
		return res
	}
	res.OK = true
	return res
}

func apply(e *rules.Engine, cmd protocol.CmdMsg, res *protocol.CmdResultMsg) error {
	switch cmd.Op {
	case protocol.OpCreate:
		ent, err := e.CreateEntity(cmd.Ref)
		if err != nil {
			return err
		}
		res.Entity = ent.Snapshot()
		return nil

	case protocol.OpGet:
		ent, err := e.Entity(rules.EntityID(cmd.EntityID))
		if err != nil {
			return err
		}
		res.Entity = ent.Snapshot()
		return nil

	case protocol.OpDestroy:
		return e.DestroyEntity(rules.EntityID(cmd.EntityID))

	case protocol.OpEquip:
		actor, item, err := pair(e, cmd.EntityID, cmd.ItemID)
		if err != nil {
			return err
		}
		slot := consts.Slot(cmd.Slot)
		if slot == "" {
			if slot, err = e.EquipItemAuto(actor, item); err != nil {
				return err
			}
		} else if err := e.EquipItem(actor, item, slot); err != nil {
			return err
		}
		res.Slot = string(slot)
		res.Entity = actor.Snapshot()
		return nil

	case protocol.OpUnequip:
		actor, err := e.Entity(rules.EntityID(cmd.EntityID))
		if err != nil {
			return err
		}
		if err := e.UnequipItem(actor, consts.Slot(cmd.Slot)); err != nil {
			return err
		}
		res.Slot = cmd.Slot
		res.Entity = actor.Snapshot()
		return nil

	case protocol.OpAddEffect:
		ent, err := e.Entity(rules.EntityID(cmd.EntityID))
		if err != nil {
			return err
		}
		if cmd.Effect == nil {
			return &protocol.Error{Code: protocol.ErrBadRequest, Message: "missing effect"}
		}
		f := rules.CreateEffect(cmd.Effect.Tag, consts.EffectType(cmd.Effect.Type), cmd.Effect.Amp,
			cmd.Effect.Duration, rules.EntityID(cmd.Effect.Source), cmd.Effect.Data)
		if err := e.AddEffect(ent, f); err != nil {
			return err
		}
		res.Entity = ent.Snapshot()
		return nil

	case protocol.OpDispel:
		ent, err := e.Entity(rules.EntityID(cmd.EntityID))
		if err != nil {
			return err
		}
		res.Removed = e.DispelMagicalEffects(ent)
		res.Entity = ent.Snapshot()
		return nil

	case protocol.OpSetAbility:
		ent, err := e.Entity(rules.EntityID(cmd.EntityID))
		if err != nil {
			return err
		}
		if err := e.SetAbility(ent, cmd.Ability, cmd.Value); err != nil {
			return err
		}
		res.Entity = ent.Snapshot()
		return nil
	}
	return &protocol.Error{Code: protocol.ErrBadRequest, Message: fmt.Sprintf("unknown op %q", cmd.Op)}
}

func pair(e *rules.Engine, actorID, itemID uint64) (*rules.Entity, *rules.Entity, error) {
	actor, err := e.Entity(rules.EntityID(actorID))
	if err != nil {
		return nil, nil, err
	}
	item, err := e.Entity(rules.EntityID(itemID))
	if err != nil {
		return nil, nil, err
	}
	return actor, item, nil
}
