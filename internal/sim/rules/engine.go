// Package rules turns blueprints into live entities and keeps their
// equipment and effects consistent. An Engine is single-threaded: callers
// that share one across goroutines must serialize access themselves.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/consts"
	"d20rules.io/internal/sim/events"
)

const DefaultMaxCreateDepth = 8

type Engine struct {
	session  string
	reg      *blueprints.Registry
	data     *catalogs.Catalogs
	log      logrus.FieldLogger
	now      func() time.Time
	maxDepth int

	lastID   EntityID
	seq      uint64
	entities map[EntityID]*Entity
	// item id -> id of the actor wearing it
	holders map[EntityID]EntityID

	bus events.Bus[Event]
}

type Option func(*Engine)

func WithLogger(l logrus.FieldLogger) Option { return func(e *Engine) { e.log = l } }

func WithSessionID(id string) Option { return func(e *Engine) { e.session = id } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMaxCreateDepth bounds blueprint nesting during CreateEntity. Values
// below 2 are ignored since an actor with gear already needs two levels.
func WithMaxCreateDepth(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.maxDepth = n
		}
	}
}

func New(reg *blueprints.Registry, data *catalogs.Catalogs, opts ...Option) *Engine {
	e := &Engine{
		session:  uuid.NewString(),
		reg:      reg,
		data:     data,
		log:      logging.Discard(),
		now:      time.Now,
		maxDepth: DefaultMaxCreateDepth,
		entities: map[EntityID]*Entity{},
		holders:  map[EntityID]EntityID{},
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithField("session", e.session)
	return e
}

func (e *Engine) Session() string                 { return e.session }
func (e *Engine) Blueprints() *blueprints.Registry { return e.reg }
func (e *Engine) Catalogs() *catalogs.Catalogs     { return e.data }

// Subscribe registers fn for every lifecycle event of this engine.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) { return e.bus.Subscribe(fn) }

func (e *Engine) emit(typ EventType, entity, item *Entity, slot consts.Slot) {
	e.seq++
	e.bus.Publish(Event{
		Type:    typ,
		Seq:     e.seq,
		Session: e.session,
		At:      e.now(),
		Entity:  entity,
		Item:    item,
		Slot:    slot,
	})
}

func (e *Engine) Entity(id EntityID) (*Entity, error) {
	if ent, ok := e.entities[id]; ok {
		return ent, nil
	}
	return nil, &protocol.Error{Code: protocol.ErrEntityNotFound, Message: fmt.Sprintf("entity %d", id)}
}

// Entities returns the live instances ordered by id.
func (e *Engine) Entities() []*Entity {
	out := make([]*Entity, 0, len(e.entities))
	for _, ent := range e.entities {
		out = append(out, ent)
	}
	sortEntities(out)
	return out
}

func (e *Engine) Len() int { return len(e.entities) }

func (e *Engine) registered(ent *Entity) bool {
	return ent != nil && e.entities[ent.id] == ent
}

// plan is a fully validated instantiation tree. Building it cannot fail.
type plan struct {
	bp   *blueprints.Blueprint
	gear []gearPlan
}

type gearPlan struct {
	slot consts.Slot
	item *plan
}

// CreateEntity instantiates ref together with its starting equipment. Every
// check runs before the first id is allocated, so on error nothing is
// registered and no event is emitted.
func (e *Engine) CreateEntity(ref string) (*Entity, error) {
	p, err := e.planEntity(ref, nil)
	if err != nil {
		return nil, err
	}
	ent := e.build(p)
	e.log.WithFields(logrus.Fields{"ref": ref, "id": ent.id, "gear": len(p.gear)}).Debug("entity created")
	return ent, nil
}

func (e *Engine) planEntity(ref string, path []string) (*plan, error) {
	for _, seen := range path {
		if seen == ref {
			chain := strings.Join(append(append([]string(nil), path...), ref), " -> ")
			return nil, &protocol.Error{Code: protocol.ErrBlueprintCycle, Ref: ref, Message: chain}
		}
	}
	if len(path) >= e.maxDepth {
		return nil, &protocol.Error{
			Code:    protocol.ErrBlueprintCycle,
			Ref:     ref,
			Message: fmt.Sprintf("nesting deeper than %d at %s", e.maxDepth, ref),
		}
	}
	bp, err := e.reg.Get(ref)
	if err != nil {
		return nil, err
	}
	p := &plan{bp: bp}
	if !bp.IsActor() {
		return p, nil
	}
	for _, av := range bp.Abilities() {
		if !e.data.HasAbility(av.Ability) {
			return nil, &protocol.Error{Code: protocol.ErrAbilityUnknown, Ref: ref, Message: av.Ability}
		}
	}

	sub := append(path[:len(path):len(path)], ref)
	held := map[consts.Slot]*blueprints.Blueprint{}
	occupant := func(s consts.Slot) *blueprints.Blueprint { return held[s] }
	for _, entry := range bp.Equipment() {
		child, err := e.planEntity(entry.Item, sub)
		if err != nil {
			return nil, err
		}
		if !child.bp.IsItem() {
			return nil, &protocol.Error{
				Code:    protocol.ErrEntityTypeMismatch,
				Ref:     entry.Item,
				Message: fmt.Sprintf("%s: equipment %s is not an item", ref, entry.Item),
			}
		}
		if !consts.IsSlot(entry.Slot) {
			return nil, &protocol.Error{Code: protocol.ErrUnknownSlot, Ref: ref, Message: string(entry.Slot)}
		}
		if held[entry.Slot] != nil {
			return nil, slotError(ref, entry.Item, entry.Slot, "slot declared twice")
		}
		ok, err := e.fits(child.bp, entry.Slot, occupant)
		if err != nil {
			return nil, err
		}
		if ok && entry.Slot == consts.SlotPrimaryHand && e.locksSecondary(child.bp) && held[consts.SlotSecondaryHand] != nil {
			ok = false
		}
		if !ok {
			return nil, slotError(ref, entry.Item, entry.Slot, "")
		}
		held[entry.Slot] = child.bp
		p.gear = append(p.gear, gearPlan{slot: entry.Slot, item: child})
	}
	return p, nil
}

func slotError(owner, item string, slot consts.Slot, why string) error {
	msg := fmt.Sprintf("%s: %s cannot go in %s", owner, item, slot)
	if why != "" {
		msg += ": " + why
	}
	return &protocol.Error{Code: protocol.ErrSlotIncompatible, Ref: item, Message: msg}
}

func (e *Engine) build(p *plan) *Entity {
	e.lastID++
	ent := newEntity(e.lastID, p.bp)
	for _, av := range p.bp.Abilities() {
		ent.abilities[av.Ability] = av.Value
	}
	for _, prop := range p.bp.Properties() {
		ent.effects = append(ent.effects, Effect{
			Tag:      prop.Tag,
			Type:     consts.EffectTypeProperties,
			Amp:      prop.Amp,
			Duration: DurationPermanent,
			Source:   ent.id,
			Data:     prop.Data,
		})
	}

	items := make([]*Entity, len(p.gear))
	for i, g := range p.gear {
		items[i] = e.build(g.item)
	}
	for i, g := range p.gear {
		e.place(ent, items[i], g.slot)
	}

	e.entities[ent.id] = ent
	e.emit(EventEntityCreated, ent, nil, "")
	return ent
}

// DestroyEntity removes id from the live table. An item worn by a live actor
// is unequipped first. Items worn by a destroyed actor stay registered.
func (e *Engine) DestroyEntity(id EntityID) error {
	ent, ok := e.entities[id]
	if !ok {
		return &protocol.Error{Code: protocol.ErrEntityNotFound, Message: fmt.Sprintf("entity %d", id)}
	}
	e.detach(ent)
	if ent.bp.IsActor() {
		for _, itemID := range ent.equipment {
			if itemID != 0 && e.holders[itemID] == ent.id {
				delete(e.holders, itemID)
			}
		}
	}
	delete(e.entities, id)
	e.emit(EventEntityDestroyed, ent, nil, "")
	e.log.WithFields(logrus.Fields{"ref": ent.Ref(), "id": id}).Debug("entity destroyed")
	return nil
}
