package blueprints

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"d20rules.io/internal/sim/consts"
)

func TestLoadDir_JSONAndYAML(t *testing.T) {
	r := newRegistry(t)
	n, err := LoadDir(r, filepath.Join("testdata", "pack"))
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if n != 4 {
		t.Fatalf("loaded %d blueprints, want 4 (%v)", n, r.Refs())
	}

	gs, err := r.Get("wpn-greatsword")
	if err != nil {
		t.Fatalf("Get yaml blueprint: %v", err)
	}
	props := gs.Properties()
	if !gs.Magical() || len(props) != 1 || props[0].Amp != 1 || props[0].Data["note"] != "runes along the fuller" {
		t.Fatalf("unexpected yaml blueprint: %#v", props)
	}

	bandit, err := r.Get("npc-bandit")
	if err != nil {
		t.Fatalf("Get actor: %v", err)
	}
	eq := bandit.Equipment()
	if len(eq) != 2 || eq[0].Slot != consts.SlotPrimaryHand || eq[0].Item != "wpn-club" {
		t.Fatalf("unexpected equipment: %#v", eq)
	}
	if bandit.AC() != 11 || bandit.Specie() != "SPECIE_HUMAN" {
		t.Fatalf("unexpected descriptive fields")
	}
}

func TestLoadDir_StopsOnInvalid(t *testing.T) {
	r := newRegistry(t)
	_, err := LoadDir(r, filepath.Join("testdata", "broken"))
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid blueprint error, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("invalid blueprint registered")
	}
}

func TestLoadDir_BadYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.yaml"), []byte("entityType: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := newRegistry(t)
	if _, err := LoadDir(r, dir); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadDir_MissingDir(t *testing.T) {
	r := newRegistry(t)
	if _, err := LoadDir(r, filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
