package loader

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meur/boundlexx/internal/client"
	"github.com/meur/boundlexx/internal/models"
	"github.com/meur/boundlexx/internal/state"
	"github.com/meur/boundlexx/internal/testutil"
)

type fixture struct {
	api    *testutil.FakeAPI
	acc    *client.Accessor
	state  *state.State
	loader *Loader

	mu     sync.Mutex
	sleeps []time.Duration
}

func newFixture(t *testing.T, pageSize int) *fixture {
	t.Helper()

	f := &fixture{api: testutil.NewFakeAPI(t), state: state.New(5 * time.Millisecond)}
	f.acc = client.NewAccessor(client.Options{
		APIBase:  f.api.APIBase(),
		Cooldown: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
		Sink:     f.state,
	})
	f.loader = New(f.acc, f.state, Options{PageSize: pageSize, Cooldown: time.Second, Logger: zap.NewNop()})
	f.loader.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		return ctx.Err()
	}
	return f
}

func (f *fixture) sleepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sleeps)
}

func TestLoad_FetchesPagesInOrder(t *testing.T) {
	f := newFixture(t, 2)
	f.api.SetCollection(models.KindItem, "english", testutil.Records("game_id", 1, 5))

	require.NoError(t, f.loader.Load(context.Background(), models.KindItem, "english"))

	st := f.state.Items.Status()
	assert.Equal(t, 5, st.Len)
	assert.Equal(t, 5, *st.Count)
	assert.True(t, st.Loaded)
	assert.Equal(t, "english", st.Locale)
	assert.True(t, st.NextKnown)
	assert.Nil(t, st.Next)

	reqs := f.api.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0], "limit=2")
	assert.Contains(t, reqs[0], "lang=english")
	assert.NotContains(t, reqs[0], "offset=")
	assert.Contains(t, reqs[1], "offset=2")
	assert.Contains(t, reqs[2], "offset=4")

	doc, _, _ := f.state.Schema()
	assert.NotNil(t, doc, "schema published on first build")
}

func TestLoad_NonLocalizedKindOmitsLang(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindColor, "", testutil.Records("game_id", 1, 3))

	require.NoError(t, f.loader.Load(context.Background(), models.KindColor, "french"))

	reqs := f.api.Requests()
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0], "lang=")
	assert.Empty(t, f.state.Colors.Status().Locale)
}

func TestLoad_RetriesFailedPages(t *testing.T) {
	f := newFixture(t, 2)
	f.api.SetCollection(models.KindSkill, "", testutil.Records("id", 1, 4))
	f.api.FailNext(models.KindSkill, 2)

	require.NoError(t, f.loader.Load(context.Background(), models.KindSkill, "english"))

	assert.Equal(t, 2, f.sleepCount())
	for _, d := range f.sleeps {
		assert.Equal(t, time.Second, d)
	}
	assert.True(t, f.state.Skills.Loaded())
	assert.Len(t, f.api.Requests(), 4, "two failures then two pages")
}

func TestLoad_UnknownOperationForcesRebuild(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindEmoji, "", []models.Record{{"name": "gleam"}, {"name": "boundless"}})
	f.api.HideOperation("listEmojis", true)

	stale, err := f.acc.Client(context.Background(), false)
	require.NoError(t, err)
	require.False(t, stale.HasOperation("listEmojis"))

	f.api.HideOperation("listEmojis", false)
	require.NoError(t, f.loader.Load(context.Background(), models.KindEmoji, "english"))

	assert.EqualValues(t, 2, f.api.SchemaHits.Load())
	assert.Zero(t, f.sleepCount(), "the accessor owns the rebuild cooldown")
	assert.True(t, f.state.Emojis.Loaded())

	fresh, err := f.acc.Client(context.Background(), false)
	require.NoError(t, err)
	assert.NotSame(t, stale, fresh)
}

func TestLoad_RetriesSchemaFailure(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindMetal, "", testutil.Records("game_id", 1, 2))
	f.api.SchemaDown(true)

	f.loader.sleep = func(ctx context.Context, d time.Duration) error {
		f.mu.Lock()
		f.sleeps = append(f.sleeps, d)
		f.mu.Unlock()
		f.api.SchemaDown(false)
		return nil
	}

	require.NoError(t, f.loader.Load(context.Background(), models.KindMetal, "english"))
	assert.Equal(t, 1, f.sleepCount())
	assert.EqualValues(t, 2, f.api.SchemaHits.Load())
}

func TestLoad_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindItem, "", testutil.Records("game_id", 1, 2))
	f.api.FailNext(models.KindItem, 1_000_000)
	f.loader.sleep = sleepCtx
	f.loader.opts.Cooldown = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := f.loader.Load(ctx, models.KindItem, "english")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, f.state.Items.Loaded())
}

func TestLoad_UnknownKind(t *testing.T) {
	f := newFixture(t, 200)
	err := f.loader.Load(context.Background(), "beacons", "english")
	assert.ErrorIs(t, err, models.ErrUnknownKind)
}

func TestLoad_WaiterReleasedByLoad(t *testing.T) {
	f := newFixture(t, 3)
	f.api.SetCollection(models.KindRecipeGroup, "", testutil.Records("id", 1, 7))

	waited := make(chan error, 1)
	go func() {
		waited <- f.state.RequireRecipeGroups(context.Background())
	}()

	require.NoError(t, f.loader.Load(context.Background(), models.KindRecipeGroup, "english"))

	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released")
	}
	assert.Equal(t, 7, f.state.RecipeGroups.Len())
}

func TestLoad_WorldsStampRefresh(t *testing.T) {
	f := newFixture(t, 2)
	worlds := testutil.Records("id", 100, 3)
	worlds = append(worlds, models.Record{"name": "no id"})
	f.api.SetCollection(models.KindWorld, "", worlds)

	require.NoError(t, f.loader.Load(context.Background(), models.KindWorld, ""))

	st := f.state.Worlds.Status()
	require.NotNil(t, st.LastUpdated)
	assert.Equal(t, 3, *st.Count)
	assert.True(t, st.Loaded)
}

func TestLoadAll(t *testing.T) {
	f := newFixture(t, 2)
	f.api.SetCollection(models.KindWorld, "", testutil.Records("id", 1, 3))
	f.api.SetCollection(models.KindItem, "", testutil.Records("game_id", 1, 5))
	f.api.SetCollection(models.KindColor, "", testutil.Records("game_id", 1, 1))

	err := f.loader.LoadAll(context.Background(), "english", models.KindWorld, models.KindItem, models.KindColor)
	require.NoError(t, err)

	assert.True(t, f.state.Worlds.Loaded())
	assert.True(t, f.state.Items.Loaded())
	assert.True(t, f.state.Colors.Loaded())
	assert.False(t, f.state.Skills.Loaded(), "not requested")
	assert.EqualValues(t, 1, f.api.SchemaHits.Load())
}

func TestStart_DeduplicatesRunningLoads(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindItem, "", testutil.Records("game_id", 1, 2))
	f.api.FailNext(models.KindItem, 1_000_000)
	f.loader.sleep = sleepCtx
	f.loader.opts.Cooldown = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	assert.True(t, f.loader.Start(ctx, models.KindItem, "english"))
	assert.False(t, f.loader.Start(ctx, models.KindItem, "english"))
	assert.True(t, f.loader.Start(ctx, models.KindItem, "french"), "other locale is a separate load")

	cancel()
	require.Eventually(t, func() bool {
		f.loader.mu.Lock()
		defer f.loader.mu.Unlock()
		return len(f.loader.running) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStart_CompletesInBackground(t *testing.T) {
	f := newFixture(t, 200)
	f.api.SetCollection(models.KindMetal, "", testutil.Records("game_id", 1, 4))

	assert.True(t, f.loader.Start(context.Background(), models.KindMetal, "english"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.state.RequireMetals(ctx))

	for _, r := range f.api.Requests() {
		assert.True(t, strings.HasPrefix(r, "/api/v1/metals/"), r)
	}
}
