package protocol

import "encoding/json"

// HELLO (client -> server) opens a command socket.
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	MaxQueue        int    `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	SessionID       string            `json:"session_id"`
	Blueprints      int               `json:"blueprints"`
	Catalogs        map[string]string `json:"catalogs"`
}

type Op string

const (
	OpCreate     Op = "create"
	OpGet        Op = "get"
	OpDestroy    Op = "destroy"
	OpEquip      Op = "equip"
	OpUnequip    Op = "unequip"
	OpAddEffect  Op = "add_effect"
	OpDispel     Op = "dispel"
	OpSetAbility Op = "set_ability"
)

// CMD (client -> server). Only the fields relevant to Op are read.
type CmdMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version,omitempty"`
	ID              string      `json:"id,omitempty"`
	Op              Op          `json:"op"`
	Ref             string      `json:"ref,omitempty"`
	EntityID        uint64      `json:"entity_id,omitempty"`
	ItemID          uint64      `json:"item_id,omitempty"`
	Slot            string      `json:"slot,omitempty"`
	Ability         string      `json:"ability,omitempty"`
	Value           int         `json:"value,omitempty"`
	Effect          *EffectSpec `json:"effect,omitempty"`
}

type EffectSpec struct {
	Tag      string         `json:"tag"`
	Type     string         `json:"type"`
	Amp      int            `json:"amp"`
	Duration int            `json:"duration"`
	Source   uint64         `json:"source,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// CMD_RESULT (server -> client)
type CmdResultMsg struct {
	Type    string     `json:"type"`
	ID      string     `json:"id,omitempty"`
	OK      bool       `json:"ok"`
	Entity  any        `json:"entity,omitempty"`
	Slot    string     `json:"slot,omitempty"`
	Removed int        `json:"removed,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is the JSON rendering of an error on every surface.
type ErrorBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func ErrorBodyOf(err error) *ErrorBody {
	if err == nil {
		return nil
	}
	b := &ErrorBody{Code: CodeOf(err), Message: err.Error()}
	if pe := asError(err); pe != nil {
		b.Suggestions = append([]string(nil), pe.Suggestions...)
	}
	return b
}

// SUBSCRIBE (client -> server) selects what the event feed delivers. Empty
// Types means every type; zero EntityID means every entity.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Types           []string `json:"types,omitempty"`
	EntityID        uint64   `json:"entity_id,omitempty"`
}

// EVENT (server -> client)
type EventMsg struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

// HTTP bodies.

type CreateEntityRequest struct {
	Ref string `json:"ref"`
}

type EquipRequest struct {
	ItemID uint64 `json:"item_id"`
	// Empty picks the slot automatically.
	Slot string `json:"slot,omitempty"`
}

type UnequipRequest struct {
	Slot string `json:"slot"`
}

type SetAbilityRequest struct {
	Ability string `json:"ability"`
	Value   int    `json:"value"`
}

type BlueprintListResponse struct {
	Refs []string `json:"refs"`
}

type BlueprintResponse struct {
	Ref       string          `json:"ref"`
	Blueprint json.RawMessage `json:"blueprint"`
}
