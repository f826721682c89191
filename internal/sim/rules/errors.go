package rules

import "d20rules.io/internal/protocol"

var (
	ErrEntityTypeMismatch = &protocol.Error{Code: protocol.ErrEntityTypeMismatch}
	ErrEntityNotFound     = &protocol.Error{Code: protocol.ErrEntityNotFound}
	ErrWeaponDataNotFound = &protocol.Error{Code: protocol.ErrWeaponDataNotFound}
	ErrArmorDataNotFound  = &protocol.Error{Code: protocol.ErrArmorDataNotFound}
	ErrSlotIncompatible   = &protocol.Error{Code: protocol.ErrSlotIncompatible}
	ErrUnknownSlot        = &protocol.Error{Code: protocol.ErrUnknownSlot}
	ErrAbilityUnknown     = &protocol.Error{Code: protocol.ErrAbilityUnknown}
	ErrBlueprintCycle     = &protocol.Error{Code: protocol.ErrBlueprintCycle}
	ErrBadEffect          = &protocol.Error{Code: protocol.ErrBadRequest}
)

func mismatch(msg string) error {
	return &protocol.Error{Code: protocol.ErrEntityTypeMismatch, Message: msg}
}
