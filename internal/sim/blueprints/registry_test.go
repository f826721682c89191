package blueprints

import (
	"encoding/json"
	"errors"
	"testing"

	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/consts"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

func clubDoc() map[string]any {
	return map[string]any{
		"entityType":   consts.EntityTypeItem,
		"itemBaseType": consts.ItemBaseTypeWeapon,
		"itemSubType":  "WEAPON_TYPE_CLUB",
		"magical":      false,
		"properties": []any{
			map[string]any{"tag": "ITEM_PROPERTY_LIGHT", "amp": 1, "data": map[string]any{"radius": 5}},
		},
	}
}

func TestGet_EmptyRegistry(t *testing.T) {
	r := newRegistry(t)
	_, err := r.Get("wpn-clubi")
	if !errors.Is(err, ErrNoBlueprintLoaded) {
		t.Fatalf("expected no blueprint loaded, got %v", err)
	}
}

func TestGet_SuggestsCloseRef(t *testing.T) {
	r := newRegistry(t)
	if err := r.Define("wpn-club", clubDoc()); err != nil {
		t.Fatalf("Define: %v", err)
	}
	if err := r.Define("arm-plate", map[string]any{
		"entityType": consts.EntityTypeItem, "itemBaseType": consts.ItemBaseTypeArmor, "itemSubType": "ARMOR_TYPE_PLATE",
	}); err != nil {
		t.Fatalf("Define: %v", err)
	}

	_, err := r.Get("wpn-clubb")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || len(pe.Suggestions) != 1 || pe.Suggestions[0] != "wpn-club" {
		t.Fatalf("unexpected suggestions: %#v", pe)
	}

	if _, err := r.Get("WPN-CLUBI"); err == nil {
		t.Fatalf("lookup must stay case sensitive")
	} else if errors.As(err, &pe); len(pe.Suggestions) == 0 || pe.Suggestions[0] != "wpn-club" {
		t.Fatalf("case-folded suggestion missing: %v", err)
	}
}

func TestGet_ReturnsSamePointerAndFields(t *testing.T) {
	r := newRegistry(t)
	if err := r.Define("wpn-club", clubDoc()); err != nil {
		t.Fatalf("Define: %v", err)
	}
	a, err := r.Get("wpn-club")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := r.Get("wpn-club")
	if a != b {
		t.Fatalf("expected reference-equal blueprints")
	}
	if a.ItemBaseType() != consts.ItemBaseTypeWeapon || a.ItemSubType() != "WEAPON_TYPE_CLUB" {
		t.Fatalf("unexpected blueprint fields")
	}
	if !a.IsItem() || a.IsActor() || !a.IsWeapon() || a.Ref() != "wpn-club" {
		t.Fatalf("unexpected type predicates")
	}
}

func TestBlueprint_MutationDoesNotLeak(t *testing.T) {
	r := newRegistry(t)
	doc := clubDoc()
	if err := r.Define("wpn-club", doc); err != nil {
		t.Fatalf("Define: %v", err)
	}
	// Mutating the source document after registration has no effect.
	doc["itemSubType"] = "WEAPON_TYPE_MAUL"
	doc["properties"].([]any)[0].(map[string]any)["tag"] = "HACKED"

	bp, _ := r.Get("wpn-club")
	if bp.ItemSubType() != "WEAPON_TYPE_CLUB" {
		t.Fatalf("source mutation leaked into blueprint")
	}

	props := bp.Properties()
	props[0].Tag = "HACKED"
	props[0].Data["radius"] = 99
	again := bp.Properties()
	if again[0].Tag != "ITEM_PROPERTY_LIGHT" || again[0].Data["radius"] != float64(5) {
		t.Fatalf("accessor mutation leaked: %#v", again[0])
	}
}

func TestDefine_RejectsInvalidAndKeepsPrior(t *testing.T) {
	r := newRegistry(t)
	if err := r.Define("wpn-club", clubDoc()); err != nil {
		t.Fatalf("Define: %v", err)
	}
	bad := clubDoc()
	delete(bad, "itemSubType")
	err := r.Define("wpn-club", bad)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}
	bp, err := r.Get("wpn-club")
	if err != nil || bp.ItemSubType() != "WEAPON_TYPE_CLUB" {
		t.Fatalf("prior definition must survive a rejected redefinition")
	}
}

func TestDefine_ActorSchema(t *testing.T) {
	r := newRegistry(t)
	ok := map[string]any{
		"entityType": consts.EntityTypeActor,
		"abilities":  []any{map[string]any{"ability": "ABILITY_STRENGTH", "value": 12}},
		"equipment":  []any{map[string]any{"slot": string(consts.SlotPrimaryHand), "item": "wpn-club"}},
	}
	if err := r.Define("npc-bandit", ok); err != nil {
		t.Fatalf("Define actor: %v", err)
	}
	bad := map[string]any{
		"entityType": consts.EntityTypeActor,
		"abilities":  []any{},
		"equipment":  []any{map[string]any{"slot": "EQUIPMENT_SLOT_TAIL", "item": "wpn-club"}},
	}
	if err := r.Define("npc-broken", bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid slot rejected, got %v", err)
	}
	if _, err := r.Get("npc-broken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected blueprint must not be registered")
	}
}

func TestDefine_UnknownEntityTypeBypassesValidation(t *testing.T) {
	r := newRegistry(t)
	doc := map[string]any{"entityType": "ENTITY_TYPE_PLACEABLE", "whatever": []any{1, 2}}
	if err := r.Define("plc-chest", doc); err != nil {
		t.Fatalf("Define: %v", err)
	}
	bp, _ := r.Get("plc-chest")
	if bp.IsItem() || bp.IsActor() {
		t.Fatalf("unexpected type predicates")
	}
}

func TestDefine_UnknownEntityTypeKeepsOddlyShapedFields(t *testing.T) {
	r := newRegistry(t)
	doc := map[string]any{"entityType": "ENTITY_TYPE_PLACEABLE", "abilities": "none", "equipment": 3}
	if err := r.Define("plc-odd", doc); err != nil {
		t.Fatalf("Define: %v", err)
	}
	bp, err := r.Get("plc-odd")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if bp.EntityType() != "ENTITY_TYPE_PLACEABLE" || len(bp.Abilities()) != 0 || len(bp.Equipment()) != 0 {
		t.Fatalf("unexpected blueprint: type=%q abilities=%v equipment=%v", bp.EntityType(), bp.Abilities(), bp.Equipment())
	}
	out, err := json.Marshal(bp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back["abilities"] != "none" || back["equipment"] != float64(3) {
		t.Fatalf("original document not kept: %s", out)
	}
}

func TestDefine_NonObjectAndEmptyRef(t *testing.T) {
	r := newRegistry(t)
	if err := r.Define("x", []any{1}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid for array document, got %v", err)
	}
	if err := r.Define("", clubDoc()); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid for empty ref, got %v", err)
	}
}

func TestRefs_SortedCopy(t *testing.T) {
	r := newRegistry(t)
	_ = r.Define("b", clubDoc())
	_ = r.Define("a", clubDoc())
	refs := r.Refs()
	if len(refs) != 2 || refs[0] != "a" || refs[1] != "b" {
		t.Fatalf("refs=%v", refs)
	}
	refs[0] = "zzz"
	if r.Refs()[0] != "a" || r.Len() != 2 {
		t.Fatalf("Refs must return a copy")
	}
}

func TestSuggest_RanksByDistance(t *testing.T) {
	got := suggest("wpn-dager", []string{"wpn-dagger", "wpn-danger", "arm-leather", "wpn-dagge"})
	// dagger and danger are one edit away, dagge is two.
	want := []string{"wpn-dagger", "wpn-danger", "wpn-dagge"}
	if len(got) != len(want) {
		t.Fatalf("unexpected ranking: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	for _, g := range got {
		if g == "arm-leather" {
			t.Fatalf("far candidate suggested: %v", got)
		}
	}
}
