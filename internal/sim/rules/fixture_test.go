package rules

import (
	"testing"
	"time"

	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/consts"
)

func item(base, sub string) map[string]any {
	return map[string]any{
		"entityType":   consts.EntityTypeItem,
		"itemBaseType": base,
		"itemSubType":  sub,
	}
}

func weapon(sub string) map[string]any { return item(consts.ItemBaseTypeWeapon, sub) }

func actor(gear ...string) map[string]any {
	eq := []any{}
	for i := 0; i+1 < len(gear); i += 2 {
		eq = append(eq, map[string]any{"slot": gear[i], "item": gear[i+1]})
	}
	return map[string]any{
		"entityType": consts.EntityTypeActor,
		"abilities": []any{
			map[string]any{"ability": "ABILITY_STRENGTH", "value": 11},
			map[string]any{"ability": "ABILITY_DEXTERITY", "value": 12},
		},
		"equipment": eq,
	}
}

const (
	primary   = string(consts.SlotPrimaryHand)
	secondary = string(consts.SlotSecondaryHand)
	chest     = string(consts.SlotChest)
)

func fixtureRegistry(t *testing.T) *blueprints.Registry {
	t.Helper()
	r, err := blueprints.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	greatsword := weapon("WEAPON_TYPE_GREATSWORD")
	greatsword["magical"] = true
	greatsword["properties"] = []any{
		map[string]any{"tag": "ITEM_PROPERTY_ENHANCEMENT", "amp": 1, "data": map[string]any{"note": "runes"}},
	}
	defs := map[string]map[string]any{
		"wpn-club":       weapon("WEAPON_TYPE_CLUB"),
		"wpn-dagger":     weapon("WEAPON_TYPE_DAGGER"),
		"wpn-greatsword": greatsword,
		"wpn-longbow":    weapon("WEAPON_TYPE_LONGBOW"),
		"wpn-boomerang":  weapon("WEAPON_TYPE_BOOMERANG"),
		"arm-leather":    item(consts.ItemBaseTypeArmor, "ARMOR_TYPE_LEATHER"),
		"arm-mithral":    item(consts.ItemBaseTypeArmor, "ARMOR_TYPE_MITHRAL"),
		"shd-wooden":     item(consts.ItemBaseTypeShield, "SHIELD_TYPE_WOODEN"),
		"rng-gold":       item(consts.ItemBaseTypeRing, "RING_TYPE_GOLD"),
		"pot-healing":    item("ITEM_BASE_TYPE_POTION", "POTION_TYPE_HEALING"),

		"npc-bandit":    actor(primary, "wpn-club", chest, "arm-leather"),
		"npc-naked":     actor(),
		"npc-knight":    actor(primary, "wpn-greatsword"),
		"npc-archer":    actor(secondary, "wpn-longbow"),
		"npc-cursed":    actor(primary, "npc-naked"),
		"npc-loop":      actor(primary, "npc-loop"),
		"npc-ping":      actor(primary, "npc-pong"),
		"npc-pong":      actor(primary, "npc-ping"),
		"npc-bad-grip":  actor(primary, "wpn-greatsword", secondary, "wpn-dagger"),
		"npc-bad-bow":   actor(primary, "wpn-longbow"),
		"npc-juggler":   actor(primary, "wpn-club", primary, "wpn-dagger"),
		"npc-boomerang": actor(primary, "wpn-boomerang"),
		"npc-lost":      actor(chest, "arm-leather", primary, "wpn-clubb"),
	}
	for ref, doc := range defs {
		if err := r.Define(ref, doc); err != nil {
			t.Fatalf("Define %s: %v", ref, err)
		}
	}
	return r
}

// recorder collects engine events in delivery order.
type recorder struct {
	events []EventRecord
}

func (r *recorder) on(ev Event) { r.events = append(r.events, ev.Record()) }

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *recorder) reset() { r.events = nil }

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recorder) {
	t.Helper()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	opts = append([]Option{WithSessionID("test-session"), WithClock(func() time.Time { return at })}, opts...)
	e := New(fixtureRegistry(t), catalogs.MustDefault(), opts...)
	rec := &recorder{}
	e.Subscribe(rec.on)
	return e, rec
}

func mustCreate(t *testing.T, e *Engine, ref string) *Entity {
	t.Helper()
	ent, err := e.CreateEntity(ref)
	if err != nil {
		t.Fatalf("CreateEntity(%s): %v", ref, err)
	}
	return ent
}

func sameTypes(got, want []EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
