package protocol

import (
	"errors"
	"strings"
)

const (
	// Request/transport validation.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"

	// Blueprint registry.
	ErrBlueprintInvalid  = "E_BLUEPRINT_INVALID"
	ErrBlueprintNotFound = "E_BLUEPRINT_NOT_FOUND"
	ErrNoBlueprintLoaded = "E_NO_BLUEPRINT_LOADED"
	ErrBlueprintCycle    = "E_BLUEPRINT_CYCLE"

	// Rules engine.
	ErrEntityTypeMismatch = "E_ENTITY_TYPE_MISMATCH"
	ErrEntityNotFound     = "E_ENTITY_NOT_FOUND"
	ErrWeaponDataNotFound = "E_WEAPON_DATA_NOT_FOUND"
	ErrArmorDataNotFound  = "E_ARMOR_DATA_NOT_FOUND"
	ErrSlotIncompatible   = "E_SLOT_INCOMPATIBLE"
	ErrUnknownSlot        = "E_UNKNOWN_SLOT"
	ErrAbilityUnknown     = "E_ABILITY_UNKNOWN"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:         {},
	ErrInternal:           {},
	ErrBlueprintInvalid:   {},
	ErrBlueprintNotFound:  {},
	ErrNoBlueprintLoaded:  {},
	ErrBlueprintCycle:     {},
	ErrEntityTypeMismatch: {},
	ErrEntityNotFound:     {},
	ErrWeaponDataNotFound: {},
	ErrArmorDataNotFound:  {},
	ErrSlotIncompatible:   {},
	ErrUnknownSlot:        {},
	ErrAbilityUnknown:     {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error is a coded failure raised by the registry or the rules engine.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Code        string
	Message     string
	Ref         string
	Suggestions []string
	Cause       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Suggestions) > 0 {
		b.WriteString(" (did you mean ")
		b.WriteString(strings.Join(e.Suggestions, ", "))
		b.WriteString("?)")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code carried by err, or ErrInternal for foreign errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
