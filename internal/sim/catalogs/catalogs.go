package catalogs

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"

	"d20rules.io/internal/sim/consts"
)

//go:embed data/*.json
var embedded embed.FS

const (
	weaponTypesFile   = "weapon_types.json"
	itemBaseTypesFile = "item_base_types.json"
	armorTypesFile    = "armor_types.json"
	abilitiesFile     = "abilities.json"
	skillsFile        = "skills.json"
)

// Catalogs are the static reference tables consulted by the rules engine.
// They are loaded once and never mutated afterwards.
type Catalogs struct {
	Weapons   WeaponCatalog
	BaseTypes ItemBaseTypeCatalog
	Armors    ArmorCatalog
	Abilities AbilityCatalog
	Skills    SkillCatalog
}

type WeaponCatalog struct {
	ByID   map[string]WeaponDef
	Digest string
}

type WeaponDef struct {
	ID              string   `json:"id"`
	Cost            float64  `json:"cost"`
	Damage          string   `json:"damage"`
	DamageVersatile string   `json:"damage_versatile,omitempty"`
	DamageType      string   `json:"damage_type"`
	Weight          float64  `json:"weight"`
	Proficiency     string   `json:"proficiency"`
	Ranged          bool     `json:"ranged"`
	Attributes      []string `json:"attributes"`
}

func (d WeaponDef) HasAttribute(attr string) bool {
	for _, a := range d.Attributes {
		if a == attr {
			return true
		}
	}
	return false
}

func (d WeaponDef) TwoHanded() bool { return d.HasAttribute(consts.WeaponAttributeTwoHanded) }

type ItemBaseTypeCatalog struct {
	ByID   map[string]ItemBaseTypeDef
	Digest string
}

type ItemBaseTypeDef struct {
	ID    string        `json:"id"`
	Slots []consts.Slot `json:"slots"`
}

type ArmorCatalog struct {
	ByID   map[string]ArmorDef
	Digest string
}

type ArmorDef struct {
	ID                  string  `json:"id"`
	AC                  int     `json:"ac"`
	MaxDexBonus         int     `json:"max_dex_bonus"` // -1: uncapped
	Proficiency         string  `json:"proficiency"`
	Weight              float64 `json:"weight"`
	Cost                float64 `json:"cost"`
	StealthDisadvantage bool    `json:"stealth_disadvantage"`
}

type AbilityCatalog struct {
	IDs    []string
	ByID   map[string]AbilityDef
	Digest string
}

type AbilityDef struct {
	ID string `json:"id"`
}

type SkillCatalog struct {
	ByID   map[string]SkillDef
	Digest string
}

type SkillDef struct {
	ID      string `json:"id"`
	Ability string `json:"ability"`
}

var (
	defaultOnce sync.Once
	defaultCats *Catalogs
	defaultErr  error
)

// Default returns the tables compiled into the binary. The result is shared;
// callers must treat it as read-only.
func Default() (*Catalogs, error) {
	defaultOnce.Do(func() {
		sub, err := fs.Sub(embedded, "data")
		if err != nil {
			defaultErr = err
			return
		}
		defaultCats, defaultErr = LoadFS(sub)
	})
	return defaultCats, defaultErr
}

// MustDefault is Default for tests and static initialisation.
func MustDefault() *Catalogs {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads the tables from configDir. Missing files fall back to the
// embedded copy so an override directory may carry a subset.
func Load(configDir string) (*Catalogs, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(overlayFS{top: os.DirFS(configDir), base: sub})
}

func LoadFS(fsys fs.FS) (*Catalogs, error) {
	var c Catalogs
	if err := loadWeapons(fsys, &c.Weapons); err != nil {
		return nil, err
	}
	if err := loadBaseTypes(fsys, &c.BaseTypes); err != nil {
		return nil, err
	}
	if err := loadArmors(fsys, &c.Armors); err != nil {
		return nil, err
	}
	if err := loadAbilities(fsys, &c.Abilities); err != nil {
		return nil, err
	}
	if err := loadSkills(fsys, &c.Skills); err != nil {
		return nil, err
	}
	for id, sk := range c.Skills.ByID {
		if _, ok := c.Abilities.ByID[sk.Ability]; !ok {
			return nil, fmt.Errorf("%s: %s references unknown ability %q", skillsFile, id, sk.Ability)
		}
	}
	return &c, nil
}

func (c *Catalogs) Weapon(subType string) (WeaponDef, bool) {
	d, ok := c.Weapons.ByID[subType]
	return d, ok
}

func (c *Catalogs) BaseType(id string) (ItemBaseTypeDef, bool) {
	d, ok := c.BaseTypes.ByID[id]
	return d, ok
}

func (c *Catalogs) Armor(subType string) (ArmorDef, bool) {
	d, ok := c.Armors.ByID[subType]
	return d, ok
}

func (c *Catalogs) HasAbility(id string) bool {
	_, ok := c.Abilities.ByID[id]
	return ok
}

func (c *Catalogs) Skill(id string) (SkillDef, bool) {
	d, ok := c.Skills.ByID[id]
	return d, ok
}

// Digests maps table file names to their content digest.
func (c *Catalogs) Digests() map[string]string {
	return map[string]string{
		weaponTypesFile:   c.Weapons.Digest,
		itemBaseTypesFile: c.BaseTypes.Digest,
		armorTypesFile:    c.Armors.Digest,
		abilitiesFile:     c.Abilities.Digest,
		skillsFile:        c.Skills.Digest,
	}
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func readTable[T any](fsys fs.FS, name string, id func(T) string) (map[string]T, string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, "", err
	}
	var defs []T
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, "", fmt.Errorf("%s: %w", name, err)
	}
	out := make(map[string]T, len(defs))
	for _, d := range defs {
		k := id(d)
		if k == "" {
			return nil, "", fmt.Errorf("%s: empty id", name)
		}
		if _, dup := out[k]; dup {
			return nil, "", fmt.Errorf("%s: duplicate id %q", name, k)
		}
		out[k] = d
	}
	return out, sha256Hex(raw), nil
}

func loadWeapons(fsys fs.FS, out *WeaponCatalog) error {
	byID, digest, err := readTable(fsys, weaponTypesFile, func(d WeaponDef) string { return d.ID })
	if err != nil {
		return err
	}
	for id, d := range byID {
		if d.Damage == "" {
			return fmt.Errorf("%s: %s: missing damage", weaponTypesFile, id)
		}
	}
	out.ByID, out.Digest = byID, digest
	return nil
}

func loadBaseTypes(fsys fs.FS, out *ItemBaseTypeCatalog) error {
	byID, digest, err := readTable(fsys, itemBaseTypesFile, func(d ItemBaseTypeDef) string { return d.ID })
	if err != nil {
		return err
	}
	for id, d := range byID {
		for _, s := range d.Slots {
			if !consts.IsSlot(s) {
				return fmt.Errorf("%s: %s: unknown slot %q", itemBaseTypesFile, id, s)
			}
		}
	}
	out.ByID, out.Digest = byID, digest
	return nil
}

func loadArmors(fsys fs.FS, out *ArmorCatalog) error {
	byID, digest, err := readTable(fsys, armorTypesFile, func(d ArmorDef) string { return d.ID })
	if err != nil {
		return err
	}
	out.ByID, out.Digest = byID, digest
	return nil
}

func loadAbilities(fsys fs.FS, out *AbilityCatalog) error {
	byID, digest, err := readTable(fsys, abilitiesFile, func(d AbilityDef) string { return d.ID })
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.IDs, out.ByID, out.Digest = ids, byID, digest
	return nil
}

func loadSkills(fsys fs.FS, out *SkillCatalog) error {
	byID, digest, err := readTable(fsys, skillsFile, func(d SkillDef) string { return d.ID })
	if err != nil {
		return err
	}
	out.ByID, out.Digest = byID, digest
	return nil
}

// overlayFS serves files from top when present and from base otherwise.
type overlayFS struct {
	top, base fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.top.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return o.base.Open(name)
	}
	return f, err
}
