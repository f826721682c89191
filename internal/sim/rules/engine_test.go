package rules

import (
	"errors"
	"testing"

	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/consts"
)

func TestCreateEntity_Item(t *testing.T) {
	e, rec := newTestEngine(t)
	club := mustCreate(t, e, "wpn-club")
	if club.ID() != 1 || club.Ref() != "wpn-club" {
		t.Fatalf("unexpected instance: id=%d ref=%s", club.ID(), club.Ref())
	}
	if !e.IsItem(club) || e.IsActor(club) || !e.IsWeapon(club) {
		t.Fatalf("club must be an item weapon")
	}
	if len(rec.events) != 1 || rec.events[0].Type != EventEntityCreated || rec.events[0].EntityID != club.ID() {
		t.Fatalf("unexpected events: %+v", rec.events)
	}
	if got, _ := e.Entity(club.ID()); got != club {
		t.Fatalf("instance not registered")
	}
}

func TestCreateEntity_ActorWithStartingGear(t *testing.T) {
	e, rec := newTestEngine(t)
	bandit := mustCreate(t, e, "npc-bandit")

	if v, ok := bandit.Ability("ABILITY_STRENGTH"); !ok || v != 11 {
		t.Fatalf("strength: got %d ok=%v", v, ok)
	}
	club := e.GetEquippedItem(bandit, consts.SlotPrimaryHand)
	if club == nil || club.Ref() != "wpn-club" {
		t.Fatalf("primary hand: %v", club)
	}
	armor := e.GetEquippedItem(bandit, consts.SlotChest)
	if armor == nil || armor.Ref() != "arm-leather" {
		t.Fatalf("chest: %v", armor)
	}
	if club == armor {
		t.Fatalf("each gear entry needs its own instance")
	}
	if e.Len() != 3 {
		t.Fatalf("expected actor and two items registered, got %d", e.Len())
	}
	for _, s := range consts.Slots {
		if s == consts.SlotPrimaryHand || s == consts.SlotChest {
			continue
		}
		if e.GetEquippedItem(bandit, s) != nil {
			t.Fatalf("slot %s should be empty", s)
		}
	}

	want := []EventType{EventEntityCreated, EventEntityCreated, EventEntityEquip, EventEntityEquip, EventEntityCreated}
	if !sameTypes(rec.types(), want) {
		t.Fatalf("events: got %v want %v", rec.types(), want)
	}
	last := rec.events[len(rec.events)-1]
	if last.EntityID != bandit.ID() || last.EntityRef != "npc-bandit" {
		t.Fatalf("actor must be announced last: %+v", last)
	}
	for i, ev := range rec.events {
		if ev.Seq != uint64(i+1) || ev.Session != "test-session" {
			t.Fatalf("event %d: seq=%d session=%s", i, ev.Seq, ev.Session)
		}
	}
	if eq := rec.events[2]; eq.EntityID != bandit.ID() || eq.ItemID != club.ID() || eq.Slot != consts.SlotPrimaryHand {
		t.Fatalf("equip event: %+v", eq)
	}
}

func TestCreateEntity_FreshInstancesPerCall(t *testing.T) {
	e, _ := newTestEngine(t)
	a := mustCreate(t, e, "npc-bandit")
	b := mustCreate(t, e, "npc-bandit")
	if a.Blueprint() != b.Blueprint() {
		t.Fatalf("instances of one ref share the blueprint")
	}
	if e.GetEquippedItem(a, consts.SlotPrimaryHand) == e.GetEquippedItem(b, consts.SlotPrimaryHand) {
		t.Fatalf("starting gear must not be shared")
	}
	if err := e.SetAbility(a, "ABILITY_STRENGTH", 18); err != nil {
		t.Fatalf("SetAbility: %v", err)
	}
	if v, _ := b.Ability("ABILITY_STRENGTH"); v != 11 {
		t.Fatalf("ability change leaked across instances: %d", v)
	}
}

func TestCreateEntity_IDsAreMonotonic(t *testing.T) {
	e, _ := newTestEngine(t)
	var last EntityID
	for i, ref := range []string{"wpn-club", "npc-bandit", "arm-leather", "npc-knight"} {
		ent := mustCreate(t, e, ref)
		if ent.ID() <= last {
			t.Fatalf("create %d: id %d not above %d", i, ent.ID(), last)
		}
		last = e.Entities()[e.Len()-1].ID()
	}
	if err := e.DestroyEntity(last); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	next := mustCreate(t, e, "wpn-dagger")
	if next.ID() <= last {
		t.Fatalf("destroyed id reused: %d <= %d", next.ID(), last)
	}
}

func TestCreateEntity_UnknownRefSuggests(t *testing.T) {
	e, rec := newTestEngine(t)
	_, err := e.CreateEntity("wpn-clubb")
	if !errors.Is(err, blueprints.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || len(pe.Suggestions) == 0 || pe.Suggestions[0] != "wpn-club" {
		t.Fatalf("missing suggestion: %v", err)
	}
	if e.Len() != 0 || len(rec.events) != 0 {
		t.Fatalf("failed create left state behind: len=%d events=%d", e.Len(), len(rec.events))
	}
}

func TestCreateEntity_EmptyRegistry(t *testing.T) {
	r, err := blueprints.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	e := New(r, catalogs.MustDefault())
	if _, err := e.CreateEntity("wpn-club"); !errors.Is(err, blueprints.ErrNoBlueprintLoaded) {
		t.Fatalf("expected no blueprint loaded, got %v", err)
	}
}

func TestCreateEntity_FailuresAreAtomic(t *testing.T) {
	cases := []struct {
		ref  string
		want error
	}{
		{"npc-cursed", ErrEntityTypeMismatch},
		{"npc-loop", ErrBlueprintCycle},
		{"npc-ping", ErrBlueprintCycle},
		{"npc-bad-grip", ErrSlotIncompatible},
		{"npc-bad-bow", ErrSlotIncompatible},
		{"npc-juggler", ErrSlotIncompatible},
		{"npc-boomerang", ErrWeaponDataNotFound},
		{"npc-lost", blueprints.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			e, rec := newTestEngine(t)
			_, err := e.CreateEntity(tc.ref)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			if e.Len() != 0 || len(rec.events) != 0 {
				t.Fatalf("partial create: len=%d events=%v", e.Len(), rec.types())
			}
			next := mustCreate(t, e, "wpn-club")
			if next.ID() != 1 {
				t.Fatalf("failed create consumed ids: next=%d", next.ID())
			}
		})
	}
}

func TestCreateEntity_DepthLimit(t *testing.T) {
	r := fixtureRegistry(t)
	for ref, doc := range map[string]map[string]any{
		"npc-a": actor(primary, "npc-b"),
		"npc-b": actor(primary, "npc-c"),
		"npc-c": actor(),
	} {
		if err := r.Define(ref, doc); err != nil {
			t.Fatalf("Define: %v", err)
		}
	}
	e := New(r, catalogs.MustDefault(), WithMaxCreateDepth(2))
	if _, err := e.CreateEntity("npc-a"); !errors.Is(err, ErrBlueprintCycle) {
		t.Fatalf("expected depth guard, got %v", err)
	}
	// Without the tighter bound the chain ends at a type mismatch instead.
	e = New(r, catalogs.MustDefault())
	if _, err := e.CreateEntity("npc-a"); !errors.Is(err, ErrEntityTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
}

func TestCreateEntity_PropertiesBecomeEffects(t *testing.T) {
	e, _ := newTestEngine(t)
	sword := mustCreate(t, e, "wpn-greatsword")
	fx := sword.Effects()
	if len(fx) != 1 {
		t.Fatalf("expected one property effect, got %+v", fx)
	}
	f := fx[0]
	if f.Tag != "ITEM_PROPERTY_ENHANCEMENT" || f.Type != consts.EffectTypeProperties || f.Amp != 1 ||
		f.Duration != DurationPermanent || f.Source != sword.ID() {
		t.Fatalf("unexpected effect: %+v", f)
	}

	f.Data["note"] = "scratched"
	if again := sword.Effects()[0].Data["note"]; again != "runes" {
		t.Fatalf("effect data leaked through accessor: %v", again)
	}
	if bp := sword.Blueprint().Properties()[0].Data["note"]; bp != "runes" {
		t.Fatalf("blueprint data changed: %v", bp)
	}
}

func TestDestroyEntity(t *testing.T) {
	e, rec := newTestEngine(t)
	bandit := mustCreate(t, e, "npc-bandit")
	club := e.GetEquippedItem(bandit, consts.SlotPrimaryHand)
	rec.reset()

	if err := e.DestroyEntity(club.ID()); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if !sameTypes(rec.types(), []EventType{EventEntityUnequip, EventEntityDestroyed}) {
		t.Fatalf("events: %v", rec.types())
	}
	if e.GetEquippedItem(bandit, consts.SlotPrimaryHand) != nil || bandit.EquippedID(consts.SlotPrimaryHand) != 0 {
		t.Fatalf("destroyed item still equipped")
	}
	if _, err := e.Entity(club.ID()); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := e.DestroyEntity(club.ID()); !errors.Is(err, ErrEntityNotFound) {
		t.Fatalf("second destroy: %v", err)
	}
}

func TestDestroyEntity_ActorLeavesItemsOrphaned(t *testing.T) {
	e, rec := newTestEngine(t)
	bandit := mustCreate(t, e, "npc-bandit")
	armor := e.GetEquippedItem(bandit, consts.SlotChest)
	rec.reset()

	if err := e.DestroyEntity(bandit.ID()); err != nil {
		t.Fatalf("DestroyEntity: %v", err)
	}
	if !sameTypes(rec.types(), []EventType{EventEntityDestroyed}) {
		t.Fatalf("events: %v", rec.types())
	}
	if got, err := e.Entity(armor.ID()); err != nil || got != armor {
		t.Fatalf("item should survive its holder: %v", err)
	}

	other := mustCreate(t, e, "npc-naked")
	rec.reset()
	if err := e.EquipItem(other, armor, consts.SlotChest); err != nil {
		t.Fatalf("re-equip orphan: %v", err)
	}
	if !sameTypes(rec.types(), []EventType{EventEntityEquip}) {
		t.Fatalf("orphan re-equip should not unequip a dead holder: %v", rec.types())
	}
}

func TestAbilities(t *testing.T) {
	e, _ := newTestEngine(t)
	bandit := mustCreate(t, e, "npc-bandit")
	if err := e.SetAbility(bandit, "ABILITY_WISDOM", 9); err != nil {
		t.Fatalf("SetAbility: %v", err)
	}
	if v, ok := bandit.Ability("ABILITY_WISDOM"); !ok || v != 9 {
		t.Fatalf("wisdom: %d %v", v, ok)
	}
	if err := e.SetAbility(bandit, "ABILITY_LUCK", 3); !errors.Is(err, ErrAbilityUnknown) {
		t.Fatalf("expected unknown ability, got %v", err)
	}
	club := mustCreate(t, e, "wpn-club")
	if err := e.SetAbility(club, "ABILITY_STRENGTH", 3); !errors.Is(err, ErrEntityTypeMismatch) {
		t.Fatalf("items carry no abilities: %v", err)
	}

	abs := bandit.Abilities()
	abs["ABILITY_STRENGTH"] = 30
	if v, _ := bandit.Ability("ABILITY_STRENGTH"); v != 11 {
		t.Fatalf("ability map leaked: %d", v)
	}
}

func TestWeaponAndArmorData(t *testing.T) {
	e, _ := newTestEngine(t)
	club := mustCreate(t, e, "wpn-club")
	wd, err := e.GetWeaponData(club)
	if err != nil || wd.ID != "WEAPON_TYPE_CLUB" || wd.Damage == "" {
		t.Fatalf("GetWeaponData: %+v %v", wd, err)
	}
	boomerang := mustCreate(t, e, "wpn-boomerang")
	if _, err := e.GetWeaponData(boomerang); !errors.Is(err, ErrWeaponDataNotFound) {
		t.Fatalf("expected weapon data not found, got %v", err)
	}
	leather := mustCreate(t, e, "arm-leather")
	if _, err := e.GetWeaponData(leather); !errors.Is(err, ErrEntityTypeMismatch) {
		t.Fatalf("armor is not a weapon: %v", err)
	}
	ad, err := e.GetArmorData(leather)
	if err != nil || ad.ID != "ARMOR_TYPE_LEATHER" || ad.AC == 0 {
		t.Fatalf("GetArmorData: %+v %v", ad, err)
	}
	mithral := mustCreate(t, e, "arm-mithral")
	if _, err := e.GetArmorData(mithral); !errors.Is(err, ErrArmorDataNotFound) {
		t.Fatalf("expected armor data not found, got %v", err)
	}
	if err := e.CheckWeapon(leather); !errors.Is(err, ErrEntityTypeMismatch) {
		t.Fatalf("CheckWeapon: %v", err)
	}
	if err := e.CheckActor(nil); !errors.Is(err, ErrEntityTypeMismatch) {
		t.Fatalf("CheckActor(nil): %v", err)
	}
}

func TestEventRecord(t *testing.T) {
	e, rec := newTestEngine(t)
	bandit := mustCreate(t, e, "npc-bandit")
	eq := rec.events[2]
	if eq.Type != EventEntityEquip || eq.EntityRef != "npc-bandit" || eq.ItemRef != "wpn-club" {
		t.Fatalf("record: %+v", eq)
	}
	if eq.At.IsZero() || eq.At.Location().String() != "UTC" {
		t.Fatalf("record time: %v", eq.At)
	}
	if rec.events[4].ItemID != 0 || rec.events[4].EntityID != bandit.ID() {
		t.Fatalf("created record: %+v", rec.events[4])
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	e, _ := newTestEngine(t)
	n := 0
	stop := e.Subscribe(func(Event) { n++ })
	mustCreate(t, e, "wpn-club")
	stop()
	mustCreate(t, e, "wpn-club")
	if n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
}
