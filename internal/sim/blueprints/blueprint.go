package blueprints

import (
	"encoding/json"

	"d20rules.io/internal/sim/consts"
)

// Property is a permanent item or creature property. Instances turn each one
// into a PROPERTIES effect sourced from themselves.
type Property struct {
	Tag  string         `json:"tag"`
	Amp  int            `json:"amp,omitempty"`
	Data map[string]any `json:"data,omitempty"`
}

type AbilityValue struct {
	Ability string `json:"ability"`
	Value   int    `json:"value"`
}

type SkillValue struct {
	Skill string `json:"skill"`
	Value int    `json:"value"`
}

type EquipmentEntry struct {
	Slot consts.Slot `json:"slot"`
	Item string      `json:"item"`
}

type ClassLevel struct {
	Class  string `json:"class"`
	Levels int    `json:"levels"`
}

type ActionCount struct {
	ID    string `json:"id"`
	Count int    `json:"count,omitempty"`
}

// document is the decoded shape of a validated blueprint file.
type document struct {
	EntityType    string           `json:"entityType"`
	ItemBaseType  string           `json:"itemBaseType,omitempty"`
	ItemSubType   string           `json:"itemSubType,omitempty"`
	Magical       bool             `json:"magical,omitempty"`
	Weight        float64          `json:"weight,omitempty"`
	Properties    []Property       `json:"properties,omitempty"`
	Specie        string           `json:"specie,omitempty"`
	Gender        string           `json:"gender,omitempty"`
	Size          string           `json:"size,omitempty"`
	AC            int              `json:"ac,omitempty"`
	Speed         float64          `json:"speed,omitempty"`
	Alignment     string           `json:"alignment,omitempty"`
	Classes       []ClassLevel     `json:"classes,omitempty"`
	Abilities     []AbilityValue   `json:"abilities,omitempty"`
	Proficiencies []string         `json:"proficiencies,omitempty"`
	Skills        []SkillValue     `json:"skills,omitempty"`
	Feats         []string         `json:"feats,omitempty"`
	Equipment     []EquipmentEntry `json:"equipment,omitempty"`
	Actions       []ActionCount    `json:"actions,omitempty"`
}

// Blueprint is an immutable entity template. It is built once at
// registration and only exposes copies of its collections, so holders of the
// same *Blueprint can never observe a change.
type Blueprint struct {
	ref string
	doc document
	// Original document of a blueprint whose entity type has no schema.
	raw json.RawMessage
}

func (b *Blueprint) Ref() string { return b.ref }
func (b *Blueprint) EntityType() string { return b.doc.EntityType }
func (b *Blueprint) IsItem() bool { return b.doc.EntityType == consts.EntityTypeItem }
func (b *Blueprint) IsActor() bool { return b.doc.EntityType == consts.EntityTypeActor }
func (b *Blueprint) ItemBaseType() string { return b.doc.ItemBaseType }
func (b *Blueprint) ItemSubType() string { return b.doc.ItemSubType }
func (b *Blueprint) Magical() bool { return b.doc.Magical }
func (b *Blueprint) Weight() float64 { return b.doc.Weight }
func (b *Blueprint) Specie() string { return b.doc.Specie }
func (b *Blueprint) Gender() string { return b.doc.Gender }
func (b *Blueprint) Size() string { return b.doc.Size }
func (b *Blueprint) AC() int { return b.doc.AC }
func (b *Blueprint) Speed() float64 { return b.doc.Speed }
func (b *Blueprint) Alignment() string { return b.doc.Alignment }

func (b *Blueprint) IsWeapon() bool {
	return b.IsItem() && b.doc.ItemBaseType == consts.ItemBaseTypeWeapon
}

func (b *Blueprint) IsArmor() bool {
	return b.IsItem() && b.doc.ItemBaseType == consts.ItemBaseTypeArmor
}

func (b *Blueprint) Properties() []Property {
	out := make([]Property, len(b.doc.Properties))
	for i, p := range b.doc.Properties {
		out[i] = Property{Tag: p.Tag, Amp: p.Amp, Data: CloneData(p.Data)}
	}
	return out
}

func (b *Blueprint) Abilities() []AbilityValue { return append([]AbilityValue(nil), b.doc.Abilities...) }
func (b *Blueprint) Skills() []SkillValue { return append([]SkillValue(nil), b.doc.Skills...) }
func (b *Blueprint) Equipment() []EquipmentEntry { return append([]EquipmentEntry(nil), b.doc.Equipment...) }
func (b *Blueprint) Classes() []ClassLevel { return append([]ClassLevel(nil), b.doc.Classes...) }
func (b *Blueprint) Actions() []ActionCount { return append([]ActionCount(nil), b.doc.Actions...) }
func (b *Blueprint) Proficiencies() []string { return append([]string(nil), b.doc.Proficiencies...) }
func (b *Blueprint) Feats() []string { return append([]string(nil), b.doc.Feats...) }
func (b *Blueprint) MarshalJSON() ([]byte, error) {
	if b.raw != nil {
		return append([]byte(nil), b.raw...), nil
	}
	return json.Marshal(b.doc)
}

// CloneData deep-copies a free-form JSON object.
func CloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	default:
		return v
	}
}
