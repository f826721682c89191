package rules

import (
	"time"

	"d20rules.io/internal/sim/consts"
)

type EventType string

const (
	EventEntityCreated   EventType = "entity.created"
	EventEntityEquip     EventType = "entity.equip"
	EventEntityUnequip   EventType = "entity.unequip"
	EventEntityDestroyed EventType = "entity.destroyed"
)

// Event is delivered synchronously to subscribers. Entity and Item point at
// live instances; listeners must not keep them past the callback or call back
// into the engine.
type Event struct {
	Type    EventType
	Seq     uint64
	Session string
	At      time.Time
	Entity  *Entity
	Item    *Entity
	Slot    consts.Slot
}

// EventRecord is the detached form written to the journal, the index and the
// event feed.
type EventRecord struct {
	Seq       uint64      `json:"seq"`
	Session   string      `json:"session"`
	Type      EventType   `json:"type"`
	At        time.Time   `json:"at"`
	EntityID  EntityID    `json:"entity_id"`
	EntityRef string      `json:"entity_ref"`
	ItemID    EntityID    `json:"item_id,omitempty"`
	ItemRef   string      `json:"item_ref,omitempty"`
	Slot      consts.Slot `json:"slot,omitempty"`
}

func (ev Event) Record() EventRecord {
	r := EventRecord{
		Seq:     ev.Seq,
		Session: ev.Session,
		Type:    ev.Type,
		At:      ev.At.UTC(),
		Slot:    ev.Slot,
	}
	if ev.Entity != nil {
		r.EntityID = ev.Entity.id
		r.EntityRef = ev.Entity.Ref()
	}
	if ev.Item != nil {
		r.ItemID = ev.Item.id
		r.ItemRef = ev.Item.Ref()
	}
	return r
}
