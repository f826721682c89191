package rules

import (
	"fmt"

	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/consts"
)

// candidateSlots lists every slot bp could ever occupy, ignoring what is
// currently worn.
func (e *Engine) candidateSlots(bp *blueprints.Blueprint) ([]consts.Slot, error) {
	if bp.IsWeapon() {
		wd, err := e.weaponData(bp)
		if err != nil {
			return nil, err
		}
		switch {
		case wd.Ranged:
			return []consts.Slot{consts.SlotSecondaryHand}, nil
		case wd.TwoHanded():
			return []consts.Slot{consts.SlotPrimaryHand}, nil
		default:
			return []consts.Slot{consts.SlotPrimaryHand, consts.SlotSecondaryHand}, nil
		}
	}
	bt, ok := e.data.BaseType(bp.ItemBaseType())
	if !ok {
		return nil, nil
	}
	return append([]consts.Slot(nil), bt.Slots...), nil
}

// locksSecondary reports whether bp, held in the primary hand, makes the
// secondary hand unusable.
func (e *Engine) locksSecondary(bp *blueprints.Blueprint) bool {
	if bp == nil || !bp.IsWeapon() {
		return false
	}
	wd, ok := e.data.Weapon(bp.ItemSubType())
	return ok && !wd.Ranged && wd.TwoHanded()
}

func (e *Engine) fits(bp *blueprints.Blueprint, slot consts.Slot, occupant func(consts.Slot) *blueprints.Blueprint) (bool, error) {
	cands, err := e.candidateSlots(bp)
	if err != nil {
		return false, err
	}
	found := false
	for _, c := range cands {
		if c == slot {
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if slot == consts.SlotSecondaryHand && e.locksSecondary(occupant(consts.SlotPrimaryHand)) {
		return false, nil
	}
	return true, nil
}

func (e *Engine) liveOccupant(actor *Entity) func(consts.Slot) *blueprints.Blueprint {
	return func(s consts.Slot) *blueprints.Blueprint {
		if it := e.GetEquippedItem(actor, s); it != nil {
			return it.bp
		}
		return nil
	}
}

// ItemSlots lists the slots item may occupy on an unequipped actor.
func (e *Engine) ItemSlots(item *Entity) ([]consts.Slot, error) {
	if err := e.CheckItem(item); err != nil {
		return nil, err
	}
	return e.candidateSlots(item.bp)
}

// IsItemEquipmentSlotValid reports whether item could be equipped in slot of
// entity given what entity currently wears.
func (e *Engine) IsItemEquipmentSlotValid(entity, item *Entity, slot consts.Slot) (bool, error) {
	if err := e.CheckActor(entity); err != nil {
		return false, err
	}
	if err := e.CheckItem(item); err != nil {
		return false, err
	}
	if !consts.IsSlot(slot) {
		return false, &protocol.Error{Code: protocol.ErrUnknownSlot, Message: string(slot)}
	}
	return e.fits(item.bp, slot, e.liveOccupant(entity))
}

// ResolveEquipmentSlot picks the slot EquipItemAuto would use: the first
// usable slot that is empty or already holds item, else the first usable
// slot, which will be freed by the equip.
func (e *Engine) ResolveEquipmentSlot(entity, item *Entity) (consts.Slot, error) {
	if err := e.CheckActor(entity); err != nil {
		return "", err
	}
	if err := e.CheckItem(item); err != nil {
		return "", err
	}
	cands, err := e.candidateSlots(item.bp)
	if err != nil {
		return "", err
	}
	occ := e.liveOccupant(entity)
	var usable []consts.Slot
	for _, s := range cands {
		if ok, _ := e.fits(item.bp, s, occ); ok {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		return "", &protocol.Error{
			Code:    protocol.ErrSlotIncompatible,
			Ref:     item.Ref(),
			Message: fmt.Sprintf("%s has no usable slot", item.Ref()),
		}
	}
	for _, s := range usable {
		if id := entity.equipment[s]; id == 0 || id == item.id || e.entities[id] == nil {
			return s, nil
		}
	}
	return usable[0], nil
}

// GetEquippedItem returns the instance in slot, or nil when the slot is empty
// or its occupant has been destroyed.
func (e *Engine) GetEquippedItem(entity *Entity, slot consts.Slot) *Entity {
	if entity == nil {
		return nil
	}
	id := entity.equipment[slot]
	if id == 0 {
		return nil
	}
	return e.entities[id]
}

// UnequipItem empties slot. It emits entity.unequip only when something was
// there, so repeated calls are harmless.
func (e *Engine) UnequipItem(entity *Entity, slot consts.Slot) error {
	if entity == nil {
		return mismatch("nil entity")
	}
	if !consts.IsSlot(slot) {
		return &protocol.Error{Code: protocol.ErrUnknownSlot, Message: string(slot)}
	}
	e.clear(entity, slot)
	return nil
}

func (e *Engine) clear(entity *Entity, slot consts.Slot) {
	id := entity.equipment[slot]
	if id == 0 {
		return
	}
	if old := e.entities[id]; old != nil {
		e.emit(EventEntityUnequip, entity, old, slot)
	}
	if e.holders[id] == entity.id {
		delete(e.holders, id)
	}
	entity.equipment[slot] = 0
}

// EquipItem puts item into slot of entity. Nothing changes unless every check
// passes. The item leaves whatever slot it held before, the previous occupant
// of slot is unequipped, and a two-handed weapon going into the primary hand
// also empties the secondary hand.
func (e *Engine) EquipItem(entity, item *Entity, slot consts.Slot) error {
	ok, err := e.IsItemEquipmentSlotValid(entity, item, slot)
	if err != nil {
		return err
	}
	if !e.registered(entity) {
		return &protocol.Error{Code: protocol.ErrEntityNotFound, Message: fmt.Sprintf("actor %d", entity.id)}
	}
	if !e.registered(item) {
		return &protocol.Error{Code: protocol.ErrEntityNotFound, Message: fmt.Sprintf("item %d", item.id)}
	}
	if !ok {
		return &protocol.Error{
			Code:    protocol.ErrSlotIncompatible,
			Ref:     item.Ref(),
			Message: fmt.Sprintf("%s cannot go in %s", item.Ref(), slot),
		}
	}
	e.detach(item)
	e.place(entity, item, slot)
	return nil
}

// EquipItemAuto equips item in the slot chosen by ResolveEquipmentSlot.
func (e *Engine) EquipItemAuto(entity, item *Entity) (consts.Slot, error) {
	slot, err := e.ResolveEquipmentSlot(entity, item)
	if err != nil {
		return "", err
	}
	if err := e.EquipItem(entity, item, slot); err != nil {
		return "", err
	}
	return slot, nil
}

// detach removes item from the actor currently wearing it, if any.
func (e *Engine) detach(item *Entity) {
	holderID, ok := e.holders[item.id]
	if !ok {
		return
	}
	holder := e.entities[holderID]
	if holder == nil {
		delete(e.holders, item.id)
		return
	}
	for _, s := range consts.Slots {
		if holder.equipment[s] == item.id {
			e.clear(holder, s)
		}
	}
}

// place assumes every check already passed.
func (e *Engine) place(actor, item *Entity, slot consts.Slot) {
	e.clear(actor, slot)
	if slot == consts.SlotPrimaryHand && e.locksSecondary(item.bp) {
		e.clear(actor, consts.SlotSecondaryHand)
	}
	actor.equipment[slot] = item.id
	e.holders[item.id] = actor.id
	e.emit(EventEntityEquip, actor, item, slot)
}
