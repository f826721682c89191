// Package consts holds the enumerated string values shared by blueprints,
// catalogs and the rules engine.
package consts

const (
	EntityTypeItem  = "ENTITY_TYPE_ITEM"
	EntityTypeActor = "ENTITY_TYPE_ACTOR"
)

const (
	ItemBaseTypeWeapon  = "ITEM_BASE_TYPE_WEAPON"
	ItemBaseTypeArmor   = "ITEM_BASE_TYPE_ARMOR"
	ItemBaseTypeShield  = "ITEM_BASE_TYPE_SHIELD"
	ItemBaseTypeAmmo    = "ITEM_BASE_TYPE_AMMO"
	ItemBaseTypeHelm    = "ITEM_BASE_TYPE_HELM"
	ItemBaseTypeAmulet  = "ITEM_BASE_TYPE_AMULET"
	ItemBaseTypeCloak   = "ITEM_BASE_TYPE_CLOAK"
	ItemBaseTypeBracers = "ITEM_BASE_TYPE_BRACERS"
	ItemBaseTypeRing    = "ITEM_BASE_TYPE_RING"
	ItemBaseTypeBelt    = "ITEM_BASE_TYPE_BELT"
	ItemBaseTypeBoots   = "ITEM_BASE_TYPE_BOOTS"
)

// Slot names an equipment position on an actor.
type Slot string

const (
	SlotPrimaryHand   Slot = "EQUIPMENT_SLOT_PRIMARY_HAND"
	SlotSecondaryHand Slot = "EQUIPMENT_SLOT_SECONDARY_HAND"
	SlotAmmo          Slot = "EQUIPMENT_SLOT_AMMO"
	SlotHead          Slot = "EQUIPMENT_SLOT_HEAD"
	SlotNeck          Slot = "EQUIPMENT_SLOT_NECK"
	SlotBack          Slot = "EQUIPMENT_SLOT_BACK"
	SlotChest         Slot = "EQUIPMENT_SLOT_CHEST"
	SlotArms          Slot = "EQUIPMENT_SLOT_ARMS"
	SlotLeftFinger    Slot = "EQUIPMENT_SLOT_LEFT_FINGER"
	SlotRightFinger   Slot = "EQUIPMENT_SLOT_RIGHT_FINGER"
	SlotWaist         Slot = "EQUIPMENT_SLOT_WAIST"
	SlotFeet          Slot = "EQUIPMENT_SLOT_FEET"
)

// Slots is the fixed slot set, in display order.
var Slots = [...]Slot{
	SlotPrimaryHand,
	SlotSecondaryHand,
	SlotAmmo,
	SlotHead,
	SlotNeck,
	SlotBack,
	SlotChest,
	SlotArms,
	SlotLeftFinger,
	SlotRightFinger,
	SlotWaist,
	SlotFeet,
}

func IsSlot(s Slot) bool {
	for _, x := range Slots {
		if x == s {
			return true
		}
	}
	return false
}

// EffectType classifies an effect record.
type EffectType string

const (
	// Temporary, spell-produced, dispellable.
	EffectTypeMagical EffectType = "EFFECT_TYPE_MAGICAL"
	// Intrinsic to an item or creature.
	EffectTypeProperties EffectType = "EFFECT_TYPE_PROPERTIES"
	// Blessings and curses.
	EffectTypeSupernatural EffectType = "EFFECT_TYPE_SUPERNATURAL"
)

func IsEffectType(t EffectType) bool {
	switch t {
	case EffectTypeMagical, EffectTypeProperties, EffectTypeSupernatural:
		return true
	}
	return false
}

const (
	WeaponAttributeTwoHanded = "WEAPON_ATTRIBUTE_TWO_HANDED"
	WeaponAttributeVersatile = "WEAPON_ATTRIBUTE_VERSATILE"
	WeaponAttributeFinesse   = "WEAPON_ATTRIBUTE_FINESSE"
	WeaponAttributeLight     = "WEAPON_ATTRIBUTE_LIGHT"
	WeaponAttributeHeavy     = "WEAPON_ATTRIBUTE_HEAVY"
	WeaponAttributeReach     = "WEAPON_ATTRIBUTE_REACH"
	WeaponAttributeThrown    = "WEAPON_ATTRIBUTE_THROWN"
	WeaponAttributeLoading   = "WEAPON_ATTRIBUTE_LOADING"
	WeaponAttributeAmmo      = "WEAPON_ATTRIBUTE_AMMUNITION"
)
