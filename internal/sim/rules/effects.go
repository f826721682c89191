package rules

import (
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/consts"
)

// CreateEffect builds a detached effect record. data is deep-copied.
func CreateEffect(tag string, typ consts.EffectType, amp, duration int, source EntityID, data map[string]any) Effect {
	return Effect{
		Tag:      tag,
		Type:     typ,
		Amp:      amp,
		Duration: duration,
		Source:   source,
		Data:     blueprints.CloneData(data),
	}
}

// AddEffect appends a copy of f. Effects stack; nothing is merged.
func (e *Engine) AddEffect(ent *Entity, f Effect) error {
	if ent == nil {
		return mismatch("nil entity")
	}
	if !e.registered(ent) {
		return &protocol.Error{Code: protocol.ErrEntityNotFound, Message: describe(ent)}
	}
	if f.Tag == "" {
		return &protocol.Error{Code: protocol.ErrBadRequest, Message: "effect tag is empty"}
	}
	if !consts.IsEffectType(f.Type) {
		return &protocol.Error{Code: protocol.ErrBadRequest, Message: "unknown effect type " + string(f.Type)}
	}
	if f.Duration < DurationPermanent {
		return &protocol.Error{Code: protocol.ErrBadRequest, Message: "negative effect duration"}
	}
	ent.effects = append(ent.effects, f.clone())
	return nil
}

// RemoveEffects drops every effect matching pred, keeping the order of the
// rest. It returns how many were removed; a nil pred removes nothing.
func (e *Engine) RemoveEffects(ent *Entity, pred func(Effect) bool) int {
	if ent == nil || pred == nil {
		return 0
	}
	kept := ent.effects[:0]
	removed := 0
	for _, f := range ent.effects {
		if pred(f) {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(ent.effects); i++ {
		ent.effects[i] = Effect{}
	}
	ent.effects = kept
	return removed
}

func (e *Engine) DispelMagicalEffects(ent *Entity) int {
	return e.RemoveEffects(ent, func(f Effect) bool { return f.Type == consts.EffectTypeMagical })
}

func (e *Engine) RemoveEffectsFromSource(ent *Entity, source EntityID) int {
	return e.RemoveEffects(ent, func(f Effect) bool { return f.Source == source })
}

func (e *Engine) Effects(ent *Entity) []Effect {
	if ent == nil {
		return nil
	}
	return ent.Effects()
}
