package rules

import (
	"encoding/json"
	"sort"

	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/consts"
)

// EntityID is unique within an engine and never reused.
type EntityID uint64

// DurationPermanent marks an effect that never expires.
const DurationPermanent = -1

type Effect struct {
	Tag      string            `json:"tag"`
	Type     consts.EffectType `json:"type"`
	Amp      int               `json:"amp"`
	Duration int               `json:"duration"`
	Source   EntityID          `json:"source"`
	Data     map[string]any    `json:"data,omitempty"`
}

func (f Effect) clone() Effect {
	f.Data = blueprints.CloneData(f.Data)
	return f
}

// Entity is a live instance of a blueprint. Its state changes only through
// Engine methods; the accessors below return copies.
type Entity struct {
	id        EntityID
	bp        *blueprints.Blueprint
	abilities map[string]int
	effects   []Effect
	equipment map[consts.Slot]EntityID
}

func newEntity(id EntityID, bp *blueprints.Blueprint) *Entity {
	e := &Entity{
		id:        id,
		bp:        bp,
		abilities: map[string]int{},
		equipment: make(map[consts.Slot]EntityID, len(consts.Slots)),
	}
	for _, s := range consts.Slots {
		e.equipment[s] = 0
	}
	return e
}

func (e *Entity) ID() EntityID                     { return e.id }
func (e *Entity) Blueprint() *blueprints.Blueprint { return e.bp }
func (e *Entity) Ref() string                      { return e.bp.Ref() }

func (e *Entity) Ability(name string) (int, bool) {
	v, ok := e.abilities[name]
	return v, ok
}

func (e *Entity) Abilities() map[string]int {
	out := make(map[string]int, len(e.abilities))
	for k, v := range e.abilities {
		out[k] = v
	}
	return out
}

func (e *Entity) Effects() []Effect {
	out := make([]Effect, len(e.effects))
	for i, f := range e.effects {
		out[i] = f.clone()
	}
	return out
}

// EquippedID returns the id held in slot, 0 when empty.
func (e *Entity) EquippedID(slot consts.Slot) EntityID { return e.equipment[slot] }

func (e *Entity) Equipment() map[consts.Slot]EntityID {
	out := make(map[consts.Slot]EntityID, len(e.equipment))
	for k, v := range e.equipment {
		out[k] = v
	}
	return out
}

type EntitySnapshot struct {
	ID         EntityID                 `json:"id"`
	Ref        string                   `json:"ref"`
	EntityType string                   `json:"entity_type"`
	Abilities  map[string]int           `json:"abilities,omitempty"`
	Effects    []Effect                 `json:"effects"`
	Equipment  map[consts.Slot]EntityID `json:"equipment,omitempty"`
}

func (e *Entity) Snapshot() EntitySnapshot {
	s := EntitySnapshot{
		ID:         e.id,
		Ref:        e.bp.Ref(),
		EntityType: e.bp.EntityType(),
		Effects:    e.Effects(),
	}
	if len(e.abilities) > 0 {
		s.Abilities = e.Abilities()
	}
	if e.bp.IsActor() {
		s.Equipment = e.Equipment()
	}
	return s
}

func (e *Entity) MarshalJSON() ([]byte, error) { return json.Marshal(e.Snapshot()) }

func sortEntities(list []*Entity) {
	sort.Slice(list, func(i, j int) bool { return list[i].id < list[j].id })
}
