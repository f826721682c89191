package main

import (
	"testing"

	"d20rules.io/internal/sim/consts"
)

func TestShippedBlueprintsInstantiate(t *testing.T) {
	eng, n, err := loadEngine("../../configs/blueprints", "", "error")
	if err != nil {
		t.Fatalf("loadEngine: %v", err)
	}
	if n == 0 {
		t.Fatalf("no blueprints shipped")
	}
	for _, ref := range eng.Blueprints().Refs() {
		if _, err := eng.CreateEntity(ref); err != nil {
			t.Fatalf("%s: %s", ref, describe(err))
		}
	}

	knight, err := eng.CreateEntity("npc-knight")
	if err != nil {
		t.Fatalf("npc-knight: %v", err)
	}
	if eng.GetEquippedItem(knight, consts.SlotPrimaryHand) == nil {
		t.Fatalf("knight has no weapon")
	}
	if eng.GetEquippedItem(knight, consts.SlotSecondaryHand) != nil {
		t.Fatalf("greatsword should leave the off hand empty")
	}
}
