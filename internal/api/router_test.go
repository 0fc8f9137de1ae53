package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"

	"github.com/meur/boundlexx/internal/client"
	"github.com/meur/boundlexx/internal/loader"
	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/state"
	"github.com/meur/boundlexx/internal/store"
	"github.com/meur/boundlexx/internal/testutil"
)

type startCall struct {
	kind   models.Kind
	locale string
}

type fakeLoader struct {
	mu    sync.Mutex
	calls []startCall
}

func (f *fakeLoader) Start(ctx context.Context, kind models.Kind, locale string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, startCall{kind, locale})
	return true
}

func newTestServer(t *testing.T) (*Server, *state.State, *fakeLoader) {
	t.Helper()
	st := state.New(5 * time.Millisecond)
	ld := &fakeLoader{}
	return New(context.Background(), st, ld, Options{Locale: "english"}), st, ld
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestGetKinds(t *testing.T) {
	srv, st, _ := newTestServer(t)
	st.Worlds.MergePage([]models.Record{{"id": 1}}, &store.PageMeta{Count: 1})

	rec := do(t, srv, http.MethodGet, "/api/kinds")
	require.Equal(t, http.StatusOK, rec.Code)

	var statuses []store.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, len(models.Kinds))
	assert.Equal(t, models.KindWorld, statuses[0].Kind)
	assert.True(t, statuses[0].Loaded)
	assert.False(t, statuses[1].Loaded)
}

func TestGetRecords(t *testing.T) {
	srv, st, ld := newTestServer(t)
	st.Items.MergePage([]models.Record{
		{"game_id": 2, "name": "Wood"},
		{"game_id": 1, "name": "Rock"},
	}, &store.PageMeta{Count: 2, Locale: "english"})

	rec := do(t, srv, http.MethodGet, "/api/items")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  *int                     `json:"count"`
		Loaded bool                     `json:"loaded"`
		Locale string                   `json:"locale"`
		Items  []map[string]interface{} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, *body.Count)
	assert.True(t, body.Loaded)
	assert.Equal(t, "english", body.Locale)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Rock", body.Items[0]["name"])
	assert.Empty(t, ld.calls)
}

func TestGetRecords_LangStartsLoad(t *testing.T) {
	srv, _, ld := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/skills?lang=french")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []startCall{{models.KindSkill, "french"}}, ld.calls)
}

func TestGetRecords_LangSkipsLoadedLocale(t *testing.T) {
	srv, st, ld := newTestServer(t)
	st.Skills.MergePage([]models.Record{{"id": 1}}, &store.PageMeta{Count: 1, Locale: "english"})
	st.Colors.MergePage([]models.Record{{"game_id": 1}}, &store.PageMeta{Count: 1})

	do(t, srv, http.MethodGet, "/api/skills?lang=english")
	do(t, srv, http.MethodGet, "/api/colors?lang=german")
	assert.Empty(t, ld.calls)

	do(t, srv, http.MethodGet, "/api/skills?lang=french")
	assert.Equal(t, []startCall{{models.KindSkill, "french"}}, ld.calls)
}

func TestGetRecords_LangDoesNotRefetchLoadedStore(t *testing.T) {
	api := testutil.NewFakeAPI(t)
	api.SetCollection(models.KindColor, "", testutil.Records("game_id", 1, 3))

	st := state.New(5 * time.Millisecond)
	acc := client.NewAccessor(client.Options{APIBase: api.APIBase(), Logger: zap.NewNop(), Sink: st})
	ld := loader.New(acc, st, loader.Options{Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := New(ctx, st, ld, Options{Locale: "english"})

	for i := 0; i < 5; i++ {
		rec := do(t, srv, http.MethodGet, "/api/colors?lang=english&wait=true")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"loaded":true`)
	}
	assert.Len(t, api.Requests(), 1)
}

func TestGetRecords_WaitBlocksUntilLoaded(t *testing.T) {
	srv, st, _ := newTestServer(t)

	go func() {
		time.Sleep(20 * time.Millisecond)
		st.Colors.MergePage([]models.Record{{"game_id": 1}}, &store.PageMeta{Count: 1})
	}()

	rec := do(t, srv, http.MethodGet, "/api/colors?wait=true")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loaded":true`)
}

func TestGetRecords_WaitGivesUpWithRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/metals?wait=1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetRecords_UnknownKind(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/beacons")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetRecord(t *testing.T) {
	srv, st, _ := newTestServer(t)
	st.Emojis.MergePage([]models.Record{{"name": "gleam"}}, nil)
	st.Items.MergePage([]models.Record{{"game_id": 7, "name": "Rock"}}, nil)

	rec := do(t, srv, http.MethodGet, "/api/emojis/gleam")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/items/7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rock")

	rec = do(t, srv, http.MethodGet, "/api/items/8")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoad(t *testing.T) {
	srv, _, ld := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/recipe-groups/load")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/items/load?lang=german")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	assert.Equal(t, []startCall{
		{models.KindRecipeGroup, "english"},
		{models.KindItem, "german"},
	}, ld.calls)
}

func TestGetSchema(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/schema")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	st.PublishSchema(&openapi3.T{OpenAPI: "3.0.2"}, []byte(`{"openapi":"3.0.2"}`))
	rec = do(t, srv, http.MethodGet, "/api/schema")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"openapi":"3.0.2"}`, rec.Body.String())
}
