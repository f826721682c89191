package blueprints

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/consts"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const (
	itemSchemaURL     = "https://d20rules.io/schemas/item-blueprint.schema.json"
	creatureSchemaURL = "https://d20rules.io/schemas/creature-blueprint.schema.json"
)

var (
	ErrInvalid           = &protocol.Error{Code: protocol.ErrBlueprintInvalid}
	ErrNotFound          = &protocol.Error{Code: protocol.ErrBlueprintNotFound}
	ErrNoBlueprintLoaded = &protocol.Error{Code: protocol.ErrNoBlueprintLoaded}
)

type schemaSet struct {
	item     *jsonschema.Schema
	creature *jsonschema.Schema
}

var (
	schemasOnce sync.Once
	schemas     schemaSet
	schemasErr  error
)

func compileSchemas() (schemaSet, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for url, name := range map[string]string{
			itemSchemaURL:     "schemas/item-blueprint.schema.json",
			creatureSchemaURL: "schemas/creature-blueprint.schema.json",
		} {
			raw, err := schemaFiles.ReadFile(name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
		}
		if schemas.item, schemasErr = c.Compile(itemSchemaURL); schemasErr != nil {
			return
		}
		schemas.creature, schemasErr = c.Compile(creatureSchemaURL)
	})
	return schemas, schemasErr
}

// Registry owns every blueprint for its lifetime. Blueprints are never
// released; redefining a ref replaces the previous entry.
type Registry struct {
	blueprints map[string]*Blueprint
	schemas    schemaSet
	log        logrus.FieldLogger
}

type Option func(*Registry)

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Registry) { r.log = l }
}

func NewRegistry(opts ...Option) (*Registry, error) {
	s, err := compileSchemas()
	if err != nil {
		return nil, fmt.Errorf("compile blueprint schemas: %w", err)
	}
	r := &Registry{
		blueprints: map[string]*Blueprint{},
		schemas:    s,
		log:        logging.Discard(),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// Define validates doc against the schema selected by its entityType and
// registers it under ref. doc is any JSON-compatible value (the result of
// decoding a JSON or YAML document). Unknown entity types are accepted
// without validation.
func (r *Registry) Define(ref string, doc any) error {
	if ref == "" {
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Message: "empty resref"}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Ref: ref, Message: ref, Cause: err}
	}
	return r.DefineJSON(ref, raw)
}

func (r *Registry) DefineJSON(ref string, raw []byte) error {
	if ref == "" {
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Message: "empty resref"}
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Ref: ref, Message: ref, Cause: err}
	}
	obj, ok := generic.(map[string]any)
	if !ok {
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Ref: ref, Message: ref + ": blueprint must be an object"}
	}
	if err := r.validate(obj); err != nil {
		r.log.WithFields(logrus.Fields{"ref": ref, "entity_type": obj["entityType"]}).
			Warnf("blueprint rejected: %v", err)
		return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Ref: ref, Message: ref, Cause: err}
	}

	bp := &Blueprint{ref: ref}
	switch obj["entityType"] {
	case consts.EntityTypeActor, consts.EntityTypeItem:
		if err := json.Unmarshal(raw, &bp.doc); err != nil {
			return &protocol.Error{Code: protocol.ErrBlueprintInvalid, Ref: ref, Message: ref, Cause: err}
		}
	default:
		// Other entity types carry fields of any shape; only the type is read.
		bp.doc.EntityType, _ = obj["entityType"].(string)
		bp.raw = append(json.RawMessage(nil), raw...)
	}
	if _, exists := r.blueprints[ref]; exists {
		r.log.WithField("ref", ref).Debug("blueprint redefined")
	}
	r.blueprints[ref] = bp
	return nil
}

func (r *Registry) validate(obj map[string]any) error {
	switch obj["entityType"] {
	case consts.EntityTypeActor:
		return r.schemas.creature.Validate(obj)
	case consts.EntityTypeItem:
		return r.schemas.item.Validate(obj)
	default:
		return nil
	}
}

// Get returns the blueprint registered under ref. The same pointer is
// returned on every call.
func (r *Registry) Get(ref string) (*Blueprint, error) {
	if bp, ok := r.blueprints[ref]; ok {
		return bp, nil
	}
	sugg, err := r.Suggest(ref)
	if err != nil {
		return nil, err
	}
	return nil, &protocol.Error{
		Code:        protocol.ErrBlueprintNotFound,
		Message:     "unknown resref " + ref,
		Ref:         ref,
		Suggestions: sugg,
	}
}

// Suggest lists registered refs close to a mistyped one, best first.
func (r *Registry) Suggest(ref string) ([]string, error) {
	if len(r.blueprints) == 0 {
		return nil, &protocol.Error{Code: protocol.ErrNoBlueprintLoaded, Message: "registry is empty", Ref: ref}
	}
	return suggest(ref, r.Refs()), nil
}

func (r *Registry) Refs() []string {
	out := make([]string, 0, len(r.blueprints))
	for ref := range r.blueprints {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int { return len(r.blueprints) }
