// Package state hosts the process-wide resource stores and the last
// published API schema.
package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/store"
)

// State owns one store per resource kind. It is created once at startup
// and shared by reference.
type State struct {
	Worlds       *store.Store[int]
	Items        *store.Store[int]
	Colors       *store.Store[int]
	Skills       *store.Store[int]
	Metals       *store.Store[int]
	RecipeGroups *store.Store[int]
	Emojis       *store.Store[string]

	tables map[models.Kind]store.Table

	mu        sync.RWMutex
	schema    *openapi3.T
	schemaRaw []byte
	schemaAt  time.Time
}

// New creates the stores. throttle is the Completion Waiter interval.
func New(throttle time.Duration) *State {
	idOf := func(k models.Kind) string {
		spec, _ := k.Spec()
		return spec.IDField
	}
	th := store.WithThrottle(throttle)

	s := &State{
		Worlds:       store.New(models.KindWorld, models.IntID(idOf(models.KindWorld)), th, store.TrackRefresh()),
		Items:        store.New(models.KindItem, models.IntID(idOf(models.KindItem)), th, store.Localized()),
		Colors:       store.New(models.KindColor, models.IntID(idOf(models.KindColor)), th),
		Skills:       store.New(models.KindSkill, models.IntID(idOf(models.KindSkill)), th, store.Localized()),
		Metals:       store.New(models.KindMetal, models.IntID(idOf(models.KindMetal)), th, store.Localized()),
		RecipeGroups: store.New(models.KindRecipeGroup, models.IntID(idOf(models.KindRecipeGroup)), th, store.Localized()),
		Emojis:       store.New(models.KindEmoji, models.StringID(idOf(models.KindEmoji)), th, store.Localized()),
	}
	s.tables = map[models.Kind]store.Table{
		models.KindWorld:       s.Worlds,
		models.KindItem:        s.Items,
		models.KindColor:       s.Colors,
		models.KindSkill:       s.Skills,
		models.KindMetal:       s.Metals,
		models.KindRecipeGroup: s.RecipeGroups,
		models.KindEmoji:       s.Emojis,
	}
	return s
}

// Table returns the store for kind.
func (s *State) Table(kind models.Kind) (store.Table, error) {
	t, ok := s.tables[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownKind, string(kind))
	}
	return t, nil
}

// Statuses returns the status of every store in catalogue order.
func (s *State) Statuses() []store.Status {
	out := make([]store.Status, 0, len(models.Kinds))
	for _, k := range models.AllKinds() {
		out = append(out, s.tables[k].Status())
	}
	return out
}

// PublishSchema records the schema used to build the current API client.
func (s *State) PublishSchema(doc *openapi3.T, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schema = doc
	s.schemaRaw = raw
	s.schemaAt = time.Now()
}

// Schema returns the last published schema document and its raw JSON.
// doc is nil until a client has been built.
func (s *State) Schema() (doc *openapi3.T, raw []byte, at time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema, s.schemaRaw, s.schemaAt
}

func (s *State) RequireWorlds(ctx context.Context) error       { return s.Worlds.Require(ctx) }
func (s *State) RequireItems(ctx context.Context) error        { return s.Items.Require(ctx) }
func (s *State) RequireColors(ctx context.Context) error       { return s.Colors.Require(ctx) }
func (s *State) RequireSkills(ctx context.Context) error       { return s.Skills.Require(ctx) }
func (s *State) RequireMetals(ctx context.Context) error       { return s.Metals.Require(ctx) }
func (s *State) RequireRecipeGroups(ctx context.Context) error { return s.RecipeGroups.Require(ctx) }
func (s *State) RequireEmojis(ctx context.Context) error       { return s.Emojis.Require(ctx) }

// Require waits for the store of kind.
func (s *State) Require(ctx context.Context, kind models.Kind) error {
	t, err := s.Table(kind)
	if err != nil {
		return err
	}
	return t.Require(ctx)
}
