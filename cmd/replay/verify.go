package main

import (
	"fmt"

	"d20rules.io/internal/sim/consts"
	"d20rules.io/internal/sim/rules"
)

// shadow tracks what a session's event stream implies about the entity table.
type shadow struct {
	lastSeq uint64
	live    map[rules.EntityID]string
	// Actors seen in equip events before their own created event; creation
	// places gear before it registers the actor.
	pending map[rules.EntityID]bool
	slots   map[rules.EntityID]map[consts.Slot]rules.EntityID
	holder  map[rules.EntityID]rules.EntityID
}

func newShadow() *shadow {
	return &shadow{
		live:    map[rules.EntityID]string{},
		pending: map[rules.EntityID]bool{},
		slots:   map[rules.EntityID]map[consts.Slot]rules.EntityID{},
		holder:  map[rules.EntityID]rules.EntityID{},
	}
}

type verifier struct {
	sessions map[string]*shadow
	checked  uint64
}

func newVerifier() *verifier { return &verifier{sessions: map[string]*shadow{}} }

func (v *verifier) apply(r rules.EventRecord) error {
	s := v.sessions[r.Session]
	if s == nil {
		s = newShadow()
		v.sessions[r.Session] = s
	} else if r.Seq != s.lastSeq+1 {
		return fmt.Errorf("session %s: seq %d follows %d", r.Session, r.Seq, s.lastSeq)
	}
	s.lastSeq = r.Seq
	v.checked++

	fail := func(format string, args ...any) error {
		return fmt.Errorf("session %s seq %d (%s): %s", r.Session, r.Seq, r.Type, fmt.Sprintf(format, args...))
	}

	switch r.Type {
	case rules.EventEntityCreated:
		if _, dup := s.live[r.EntityID]; dup {
			return fail("entity %d created twice", r.EntityID)
		}
		s.live[r.EntityID] = r.EntityRef
		delete(s.pending, r.EntityID)

	case rules.EventEntityEquip:
		if _, ok := s.live[r.ItemID]; !ok {
			return fail("item %d is not live", r.ItemID)
		}
		if _, ok := s.live[r.EntityID]; !ok {
			s.pending[r.EntityID] = true
		}
		if h, held := s.holder[r.ItemID]; held {
			return fail("item %d still held by %d", r.ItemID, h)
		}
		eq := s.slots[r.EntityID]
		if eq == nil {
			eq = map[consts.Slot]rules.EntityID{}
			s.slots[r.EntityID] = eq
		}
		if cur := eq[r.Slot]; cur != 0 {
			return fail("%s of %d already holds %d", r.Slot, r.EntityID, cur)
		}
		eq[r.Slot] = r.ItemID
		s.holder[r.ItemID] = r.EntityID

	case rules.EventEntityUnequip:
		if got := s.slots[r.EntityID][r.Slot]; got != r.ItemID {
			return fail("%s of %d holds %d, not %d", r.Slot, r.EntityID, got, r.ItemID)
		}
		delete(s.slots[r.EntityID], r.Slot)
		delete(s.holder, r.ItemID)

	case rules.EventEntityDestroyed:
		if _, ok := s.live[r.EntityID]; !ok {
			return fail("entity %d is not live", r.EntityID)
		}
		if h, held := s.holder[r.EntityID]; held {
			return fail("entity %d destroyed while held by %d", r.EntityID, h)
		}
		// Gear of a destroyed actor stays live but unheld.
		for _, item := range s.slots[r.EntityID] {
			delete(s.holder, item)
		}
		delete(s.slots, r.EntityID)
		delete(s.live, r.EntityID)

	default:
		return fail("unknown event type")
	}
	return nil
}

// finish reports actors that received gear but never appeared.
func (v *verifier) finish() error {
	for name, s := range v.sessions {
		for id := range s.pending {
			return fmt.Errorf("session %s: entity %d equipped but never created", name, id)
		}
	}
	return nil
}
