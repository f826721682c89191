package rules

import (
	"fmt"

	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
)

func (e *Engine) IsItem(ent *Entity) bool   { return ent != nil && ent.bp.IsItem() }
func (e *Engine) IsActor(ent *Entity) bool  { return ent != nil && ent.bp.IsActor() }
func (e *Engine) IsWeapon(ent *Entity) bool { return ent != nil && ent.bp.IsWeapon() }
func (e *Engine) IsArmor(ent *Entity) bool  { return ent != nil && ent.bp.IsArmor() }

func (e *Engine) CheckItem(ent *Entity) error {
	if !e.IsItem(ent) {
		return mismatch(describe(ent) + " is not an item")
	}
	return nil
}

func (e *Engine) CheckActor(ent *Entity) error {
	if !e.IsActor(ent) {
		return mismatch(describe(ent) + " is not an actor")
	}
	return nil
}

func (e *Engine) CheckWeapon(ent *Entity) error {
	if !e.IsWeapon(ent) {
		return mismatch(describe(ent) + " is not a weapon")
	}
	return nil
}

func describe(ent *Entity) string {
	if ent == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%d", ent.Ref(), ent.id)
}

// GetWeaponData returns the weapon table row for item's sub-type.
func (e *Engine) GetWeaponData(item *Entity) (catalogs.WeaponDef, error) {
	if err := e.CheckWeapon(item); err != nil {
		return catalogs.WeaponDef{}, err
	}
	return e.weaponData(item.bp)
}

func (e *Engine) weaponData(bp *blueprints.Blueprint) (catalogs.WeaponDef, error) {
	wd, ok := e.data.Weapon(bp.ItemSubType())
	if !ok {
		return catalogs.WeaponDef{}, &protocol.Error{
			Code:    protocol.ErrWeaponDataNotFound,
			Ref:     bp.Ref(),
			Message: bp.ItemSubType(),
		}
	}
	return wd, nil
}

func (e *Engine) GetArmorData(item *Entity) (catalogs.ArmorDef, error) {
	if !e.IsArmor(item) {
		return catalogs.ArmorDef{}, mismatch(describe(item) + " is not armor")
	}
	ad, ok := e.data.Armor(item.bp.ItemSubType())
	if !ok {
		return catalogs.ArmorDef{}, &protocol.Error{
			Code:    protocol.ErrArmorDataNotFound,
			Ref:     item.Ref(),
			Message: item.bp.ItemSubType(),
		}
	}
	return ad, nil
}

// SetAbility overwrites one ability score of an actor.
func (e *Engine) SetAbility(ent *Entity, ability string, value int) error {
	if err := e.CheckActor(ent); err != nil {
		return err
	}
	if !e.registered(ent) {
		return &protocol.Error{Code: protocol.ErrEntityNotFound, Message: describe(ent)}
	}
	if !e.data.HasAbility(ability) {
		return &protocol.Error{Code: protocol.ErrAbilityUnknown, Message: ability}
	}
	ent.abilities[ability] = value
	return nil
}
