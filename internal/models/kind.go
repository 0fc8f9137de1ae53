package models

import (
	"errors"
	"fmt"
)

// Kind names a resource collection of the Boundlexx API.
type Kind string

const (
	KindWorld       Kind = "worlds"
	KindItem        Kind = "items"
	KindColor       Kind = "colors"
	KindSkill       Kind = "skills"
	KindMetal       Kind = "metals"
	KindRecipeGroup Kind = "recipe-groups"
	KindEmoji       Kind = "emojis"
)

// KindSpec describes how a resource kind is listed and keyed.
type KindSpec struct {
	Kind        Kind   `json:"kind"`
	OperationID string `json:"operation_id"` // list operation in the API schema
	IDField     string `json:"id_field"`     // field holding the record key
	StringID    bool   `json:"string_id"`    // key is a string rather than an int
	Localized   bool   `json:"localized"`    // list accepts lang and returns localized text
}

// Kinds is the catalogue of supported collections.
var Kinds = []KindSpec{
	{Kind: KindWorld, OperationID: "listWorlds", IDField: "id"},
	{Kind: KindItem, OperationID: "listItems", IDField: "game_id", Localized: true},
	{Kind: KindColor, OperationID: "listColors", IDField: "game_id"},
	{Kind: KindSkill, OperationID: "listSkills", IDField: "id", Localized: true},
	{Kind: KindMetal, OperationID: "listMetals", IDField: "game_id", Localized: true},
	{Kind: KindRecipeGroup, OperationID: "listRecipeGroups", IDField: "id", Localized: true},
	{Kind: KindEmoji, OperationID: "listEmojis", IDField: "name", StringID: true, Localized: true},
}

// ErrUnknownKind is returned when a kind is not in the catalogue.
var ErrUnknownKind = errors.New("unknown resource kind")

// Spec returns the catalogue entry for k.
func (k Kind) Spec() (KindSpec, error) {
	for _, s := range Kinds {
		if s.Kind == k {
			return s, nil
		}
	}
	return KindSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, err := k.Spec(); err != nil {
		return "", err
	}
	return k, nil
}

// AllKinds returns every kind in catalogue order.
func AllKinds() []Kind {
	kinds := make([]Kind, len(Kinds))
	for i, s := range Kinds {
		kinds[i] = s.Kind
	}
	return kinds
}
