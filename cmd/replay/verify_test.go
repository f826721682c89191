package main

import (
	"strings"
	"testing"

	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/consts"
	"d20rules.io/internal/sim/rules"
)

func recordSession(t *testing.T) []rules.EventRecord {
	t.Helper()
	reg, err := blueprints.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := blueprints.LoadDir(reg, "../../internal/sim/blueprints/testdata/pack"); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	eng := rules.New(reg, catalogs.MustDefault(), rules.WithSessionID("replay"))
	var recs []rules.EventRecord
	eng.Subscribe(func(ev rules.Event) { recs = append(recs, ev.Record()) })

	a, err := eng.CreateEntity("npc-bandit")
	if err != nil {
		t.Fatalf("create bandit: %v", err)
	}
	b, err := eng.CreateEntity("npc-bandit")
	if err != nil {
		t.Fatalf("create bandit: %v", err)
	}
	sword, err := eng.CreateEntity("wpn-greatsword")
	if err != nil {
		t.Fatalf("create greatsword: %v", err)
	}
	club := eng.GetEquippedItem(a, consts.SlotPrimaryHand)
	if err := eng.EquipItem(b, club, consts.SlotSecondaryHand); err != nil {
		t.Fatalf("move club: %v", err)
	}
	if err := eng.EquipItem(b, sword, consts.SlotPrimaryHand); err != nil {
		t.Fatalf("equip greatsword: %v", err)
	}
	if err := eng.DestroyEntity(sword.ID()); err != nil {
		t.Fatalf("destroy sword: %v", err)
	}
	if err := eng.DestroyEntity(a.ID()); err != nil {
		t.Fatalf("destroy actor: %v", err)
	}
	return recs
}

func verify(recs []rules.EventRecord) error {
	v := newVerifier()
	for _, r := range recs {
		if err := v.apply(r); err != nil {
			return err
		}
	}
	return v.finish()
}

func TestVerify_AcceptsEngineOutput(t *testing.T) {
	recs := recordSession(t)
	if err := verify(recs); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerify_DetectsGaps(t *testing.T) {
	recs := recordSession(t)
	cut := append(append([]rules.EventRecord(nil), recs[:4]...), recs[5:]...)
	err := verify(cut)
	if err == nil || !strings.Contains(err.Error(), "follows") {
		t.Fatalf("expected seq gap, got %v", err)
	}
}

func TestVerify_DetectsDoubleOccupancy(t *testing.T) {
	recs := []rules.EventRecord{
		{Seq: 1, Session: "s", Type: rules.EventEntityCreated, EntityID: 1, EntityRef: "npc"},
		{Seq: 2, Session: "s", Type: rules.EventEntityCreated, EntityID: 2, EntityRef: "wpn"},
		{Seq: 3, Session: "s", Type: rules.EventEntityCreated, EntityID: 3, EntityRef: "wpn"},
		{Seq: 4, Session: "s", Type: rules.EventEntityEquip, EntityID: 1, ItemID: 2, Slot: consts.SlotPrimaryHand},
		{Seq: 5, Session: "s", Type: rules.EventEntityEquip, EntityID: 1, ItemID: 3, Slot: consts.SlotPrimaryHand},
	}
	if err := verify(recs); err == nil || !strings.Contains(err.Error(), "already holds") {
		t.Fatalf("expected occupancy error, got %v", err)
	}
}

func TestVerify_DetectsMissingActor(t *testing.T) {
	recs := []rules.EventRecord{
		{Seq: 1, Session: "s", Type: rules.EventEntityCreated, EntityID: 2, EntityRef: "wpn"},
		{Seq: 2, Session: "s", Type: rules.EventEntityEquip, EntityID: 1, ItemID: 2, Slot: consts.SlotPrimaryHand},
	}
	if err := verify(recs); err == nil || !strings.Contains(err.Error(), "never created") {
		t.Fatalf("expected missing actor, got %v", err)
	}
}
